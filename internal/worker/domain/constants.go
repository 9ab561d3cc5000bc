package domain

// Run status constants stored in the ledger
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Pipeline stages
const (
	StageDecode = "decode"
	StageRecord = "record"
	StageUpload = "upload"
	StageClean  = "clean"
)

// Outcome is the terminal resolution of a delivery
type Outcome string

const (
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeRejected     Outcome = "rejected"
	// OutcomeAbandoned means the client was closing, so the delivery was left
	// for the broker to redeliver
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeUnresolved means the ack or nack call itself failed; the broker
	// redelivers the message once the channel drops
	OutcomeUnresolved Outcome = "unresolved"
)

// VideoIDPlaceholder is replaced by the job's video ID in the upload URI
const VideoIDPlaceholder = ":vid"
