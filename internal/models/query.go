package models

// AnalysisParams represents query parameters of the analysis endpoints
type AnalysisParams struct {
	CANID  *uint32
	TopN   int
	Limit  int
	Offset int
}
