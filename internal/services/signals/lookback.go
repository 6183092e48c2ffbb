package signals

// Daily bars read by each stage, and the minimum below which the stage silently skips.
const (
	DiscoveryBars    = 30
	MinDiscoveryBars = 15
	GateBars         = 100
	MinGateBars      = 50
	ScoringBars      = 60
	EntryBars        = 30
	MinEntryBars     = 15
	ExitBars         = 30
	MinExitBars      = 15
	AlignmentBars    = 2
)
