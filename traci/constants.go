package traci

// 命令
const (
	cmdGetVersion = 0x00
	cmdLoad       = 0x01
	cmdSimStep    = 0x02
	cmdClose      = 0x7f

	cmdGetTLVariable         = 0xa2
	cmdGetLaneVariable       = 0xa3
	cmdGetVehicleVariable    = 0xa4
	cmdGetSimulationVariable = 0xab

	cmdSetTLVariable      = 0xc2
	cmdSetVehicleVariable = 0xc4

	// 查询命令的响应ID为命令ID+0x10
	responseOffset = 0x10
)

// 数据类型
const (
	typeUByte      = 0x07
	typeByte       = 0x08
	typeInteger    = 0x09
	typeDouble     = 0x0b
	typeString     = 0x0c
	typeStringList = 0x0e
	typeCompound   = 0x0f
)

// 命令状态
const (
	rtypeOK             = 0x00
	rtypeNotImplemented = 0x01
	rtypeErr            = 0xff
)

// 变量
const (
	varIDList = 0x00

	// lane
	varLastStepVehicleNumber = 0x10
	varLastStepMeanSpeed     = 0x11
	varLastStepVehicleIDList = 0x12
	varMaxSpeed              = 0x41
	varLength                = 0x44
	varCO2Emission           = 0x60
	varFuelConsumption       = 0x65

	// vehicle
	varSpeed        = 0x40
	varLaneID       = 0x51
	varLanePosition = 0x56

	// traffic light
	varTLRedYellowGreenState = 0x20
	varTLPhaseIndex          = 0x22
	varTLCurrentPhase        = 0x28
	varTLCompleteDefinition  = 0x2b

	// simulation
	varDeltaT              = 0x7b
	varCollidingVehicleIDs = 0x78
	varTime                = 0x66
)
