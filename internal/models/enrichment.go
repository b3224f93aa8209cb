package models

// EnrichmentTag identifies which variant of EnrichmentState is populated.
type EnrichmentTag string

const (
	EnrichmentPending   EnrichmentTag = "pending"
	EnrichmentScraping  EnrichmentTag = "scraping"
	EnrichmentCompleted EnrichmentTag = "completed"
	EnrichmentError     EnrichmentTag = "error"
)

// EnrichmentState is a tagged variant over the four states of §4.7's state
// machine. Completed and Error are terminal: once set, no further write is
// accepted (see internal/registry.isValidTransition).
type EnrichmentState struct {
	Tag EnrichmentTag

	// Populated iff Tag == EnrichmentCompleted.
	FullName    string   `json:"full_name,omitempty"`
	DisplayText string   `json:"display_text,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"` // len <= 3

	// Populated iff Tag == EnrichmentError.
	Reason string `json:"reason,omitempty"`
}

func (s EnrichmentState) clone() EnrichmentState {
	out := s
	if s.ImageURLs != nil {
		out.ImageURLs = append([]string(nil), s.ImageURLs...)
	}
	return out
}

// Terminal reports whether no further transition is permitted.
func (t EnrichmentTag) Terminal() bool {
	return t == EnrichmentCompleted || t == EnrichmentError
}

// PendingState is the initial state written at admission.
func PendingState() EnrichmentState {
	return EnrichmentState{Tag: EnrichmentPending}
}

// ScrapingState marks an observed-but-not-yet-usable remote record.
func ScrapingState() EnrichmentState {
	return EnrichmentState{Tag: EnrichmentScraping}
}

// CompletedState builds a terminal, fully-populated state. imageURLs is
// truncated to 3 entries per §4.6.
func CompletedState(fullName, displayText string, imageURLs []string) EnrichmentState {
	if len(imageURLs) > 3 {
		imageURLs = imageURLs[:3]
	}
	return EnrichmentState{
		Tag:         EnrichmentCompleted,
		FullName:    fullName,
		DisplayText: displayText,
		ImageURLs:   append([]string(nil), imageURLs...),
	}
}

// ErrorState builds a terminal error state.
func ErrorState(reason string) EnrichmentState {
	return EnrichmentState{Tag: EnrichmentError, Reason: reason}
}
