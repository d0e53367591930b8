package model

import "time"

// PatternID identifies a detection rule in persisted and exported detections.
type PatternID string

// ActionType is the recommended action attached to a detection.
type ActionType string

// Known patterns and their actions.
const (
	PatternUpgrade   PatternID  = "PatId1"
	PatternChild     PatternID  = "PatId2"
	PatternDEINeeded PatternID  = "PatId3"
	ActionUpgrade    ActionType = "UPGRADE"
	ActionChild      ActionType = "CHILD"
	ActionDEINeeded  ActionType = "DEI-NEEDED"
)

// Action returns the action emitted by the pattern.
func (p PatternID) Action() ActionType {
	switch p {
	case PatternUpgrade:
		return ActionUpgrade
	case PatternChild:
		return ActionChild
	case PatternDEINeeded:
		return ActionDEINeeded
	default:
		return ""
	}
}

// DetectionKey is the identity of a detection. At most one detection exists
// per key; merchant-level patterns leave CustomerName empty.
type DetectionKey struct {
	PatternID    PatternID
	CustomerName string
	MerchantID   string
}

// Detection is an append-only record of a pattern match.
type Detection struct {
	RunStartTime  time.Time
	DetectionTime time.Time
	CreatedAt     time.Time
	PatternID     PatternID
	ActionType    ActionType
	CustomerName  string
	MerchantID    string
	ID            int64
	Uploaded      bool
}

// Key returns the identity of the detection.
func (d Detection) Key() DetectionKey {
	return DetectionKey{
		PatternID:    d.PatternID,
		CustomerName: d.CustomerName,
		MerchantID:   d.MerchantID,
	}
}
