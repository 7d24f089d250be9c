package model

import "time"

// ChangeTypePayUpdated is emitted by the pay-attribute channel.
const ChangeTypePayUpdated = "payUpdated"

// ChangeNotification is the best-effort live signal for one applied transition.
type ChangeNotification struct {
	ID         string    `json:"id"` // ULID
	Employee   Employee  `json:"employee"`
	ChangeType string    `json:"changeType"`
	Timestamp  time.Time `json:"timestamp"`
}
