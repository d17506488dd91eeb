package container

import "container/heap"

// item 优先队列中的元素
type item[T any] struct {
	value    T
	priority float64
	seq      int // 加入顺序，优先级相同时先加入的优先
}

type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

// Less 小顶堆，优先级相同时按加入顺序
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) {
	*h = append(*h, x.(*item[T]))
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// PriorityQueue 优先队列，优先级数值越小越先弹出
// 说明：优先级相同的元素按加入顺序弹出，结果与堆的内部布局无关
type PriorityQueue[T any] struct {
	queue itemHeap[T]
	seq   int
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// Push 批量加入元素，全部加入后需调用Heapify
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.queue = append(q.queue, &item[T]{value: value, priority: priority, seq: q.seq})
	q.seq++
}

// Heapify 重新构建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.queue)
}

// HeapPush 加入元素并维护堆
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.queue, &item[T]{value: value, priority: priority, seq: q.seq})
	q.seq++
}

// HeapPop 弹出优先级数值最小的元素
func (q *PriorityQueue[T]) HeapPop() (T, float64) {
	it := heap.Pop(&q.queue).(*item[T])
	return it.value, it.priority
}

// First 优先级数值最小的元素，不弹出
func (q *PriorityQueue[T]) First() T {
	return q.queue[0].value
}
