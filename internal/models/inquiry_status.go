package models

// InquiryStatus is the overall lifecycle state of an inquiry.
type InquiryStatus string

const (
	StatusPending   InquiryStatus = "pending"
	StatusAccepted  InquiryStatus = "accepted"
	StatusRejected  InquiryStatus = "rejected"
	StatusContacted InquiryStatus = "contacted"
	StatusCompleted InquiryStatus = "completed"
	StatusCancelled InquiryStatus = "cancelled"
)

// statusTransitions is the allowed edge set. Accept and reject are last-write:
// a rejected inquiry can still be accepted by another recipient and vice versa.
var statusTransitions = map[InquiryStatus][]InquiryStatus{
	StatusPending:   {StatusContacted, StatusAccepted, StatusRejected, StatusCancelled},
	StatusContacted: {StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled},
	StatusAccepted:  {StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled},
	StatusRejected:  {StatusRejected, StatusAccepted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

func (s InquiryStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s InquiryStatus) IsTerminal() bool {
	return s.Valid() && len(statusTransitions[s]) == 0
}

// CanTransition reports whether the inquiry may move from s to next.
func (s InquiryStatus) CanTransition(next InquiryStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which next is reachable. Stores use it
// to make status writes conditional on the current state.
func SourcesFor(next InquiryStatus) []InquiryStatus {
	var out []InquiryStatus
	for _, from := range []InquiryStatus{StatusPending, StatusContacted, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled} {
		if from.CanTransition(next) {
			out = append(out, from)
		}
	}
	return out
}
