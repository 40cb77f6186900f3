package builder

// Report summarises one build. Records = Accepted + Duplicates + Rejected.
type Report struct {
	Records       int            `json:"records"`
	Accepted      int            `json:"accepted"`
	Duplicates    int            `json:"duplicates"`
	Rejected      int            `json:"rejected"`
	RejectReasons map[string]int `json:"reject_reasons,omitempty"`
	Entries       int            `json:"entries"`
	Partitions    int            `json:"partitions"`
}

func (r Report) clone() Report {
	reasons := make(map[string]int, len(r.RejectReasons))
	for k, v := range r.RejectReasons {
		reasons[k] = v
	}
	r.RejectReasons = reasons
	return r
}

// add sums the record counters of o into r. Entries and Partitions describe a
// built index and are left alone.
func (r *Report) add(o Report) {
	r.Records += o.Records
	r.Accepted += o.Accepted
	r.Duplicates += o.Duplicates
	r.Rejected += o.Rejected
	if r.RejectReasons == nil {
		r.RejectReasons = make(map[string]int, len(o.RejectReasons))
	}
	for reason, n := range o.RejectReasons {
		r.RejectReasons[reason] += n
	}
}
