package models

// GenerationType tags which provider family produced (or will produce) a
// record's output.
type GenerationType string

const (
	TypeSoraVideo   GenerationType = "sora-video"
	TypeSoraImage   GenerationType = "sora-image"
	TypeGeminiImage GenerationType = "gemini-image"
	TypeZImageImage GenerationType = "zimage-image"
	TypeChat        GenerationType = "chat"
)

// Valid reports whether t is one of the known provider tags.
func (t GenerationType) Valid() bool {
	switch t {
	case TypeSoraVideo, TypeSoraImage, TypeGeminiImage, TypeZImageImage, TypeChat:
		return true
	}
	return false
}

// IsVideo reports whether results of this type bypass re-hosting by policy.
func (t GenerationType) IsVideo() bool { return t == TypeSoraVideo }

// GenerationStatus is the job lifecycle state. pending -> processing ->
// completed | failed; terminal states are final.
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusProcessing GenerationStatus = "processing"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s GenerationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is one user-requested generation job. Cost is fixed at creation
// and debited at most once, exactly when the record completes.
type Generation struct {
	ID           string
	UserID       string
	Type         GenerationType
	Prompt       string
	Params       map[string]any // opaque parameter bag, schema owned by the caller
	ResultURL    string         // durable reference, empty until terminal
	Cost         int64
	Status       GenerationStatus
	ErrorMessage string // set only on failed
	CreatedAt    int64  // unix ms
	UpdatedAt    int64
}
