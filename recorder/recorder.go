package recorder

import (
	"context"
	"fmt"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
	"go.mongodb.org/mongo-driver/mongo"
)

// Episode 一个回合的统计结果
type Episode struct {
	ID         string    `bson:"_id"`
	RunID      string    `bson:"run_id"`
	Env        string    `bson:"env"`
	Policy     string    `bson:"policy"`
	Seed       uint64    `bson:"seed"`
	Index      int       `bson:"episode"`
	Steps      int       `bson:"steps"`
	Return     float64   `bson:"return"`
	MeanReward float64   `bson:"mean_reward"`
	StdReward  float64   `bson:"std_reward"`
	Collisions int       `bson:"collisions"`
	FinalPhase int       `bson:"final_phase"`
	CreatedAt  time.Time `bson:"created_at"`
}

// Recorder 回合统计输出
type Recorder interface {
	Record(ctx context.Context, e Episode) error
	Close(ctx context.Context) error
}

// New 根据配置创建Recorder，uri为空时不输出
func New(c config.Recorder) Recorder {
	if c.URI == "" {
		return Noop{}
	}
	return NewMongo(c)
}

// Noop 不输出任何内容
type Noop struct{}

func (Noop) Record(context.Context, Episode) error { return nil }
func (Noop) Close(context.Context) error           { return nil }

// Mongo 每个回合写入一条文档
// 说明：同一个Mongo实例写入的文档共享一个run_id
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	runID  string
}

// NewMongo 连接MongoDB，连接失败时panic
func NewMongo(c config.Recorder) *Mongo {
	client := mongoutil.NewClient(c.URI)
	m := &Mongo{
		client: client,
		coll:   mongoutil.GetMongoColl(client, c),
		runID:  uuid.NewString(),
	}
	log.Infof("recording run %s to %s.%s", m.runID, c.DB, c.Col)
	return m
}

// RunID 本次运行的ID
func (m *Mongo) RunID() string {
	return m.runID
}

func (m *Mongo) Record(ctx context.Context, e Episode) error {
	doc := Stamp(m.runID, e, time.Now())
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("record episode %d: %w", e.Index, err)
	}
	log.Debugf("recorded episode %d as %s", e.Index, doc.ID)
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Stamp 为回合分配文档ID、运行ID与创建时间
func Stamp(runID string, e Episode, now time.Time) Episode {
	e.ID = uuid.NewString()
	e.RunID = runID
	e.CreatedAt = now
	return e
}
