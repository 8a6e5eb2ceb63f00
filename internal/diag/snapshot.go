package diag

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
)

// DescriptorStat is the minimal shape Snapshot needs from a live LSA:
// its owning thread id and its byte size. lsa.Stats() produces these.
type DescriptorStat struct {
	TID  int32
	Size int64
}

// Snapshot renders the live LSA population as a pprof profile.Profile —
// one sample per descriptor, valued in bytes, labeled by owning thread —
// so a host program can Write it to disk and inspect memory pressure
// across threads with the standard pprof tool, the same way it would
// inspect a heap profile.
func Snapshot(stats []DescriptorStat) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "lsa_bytes", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "lsa_population", Unit: "count"},
		Period:     1,
	}
	for _, s := range stats {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{s.Size},
			Label: map[string][]string{
				"thread": {fmt.Sprintf("%d", s.TID)},
			},
		})
	}
	return p
}

// WriteSnapshot writes the profile produced by Snapshot to w in pprof's
// gzip-compressed protobuf wire format.
func WriteSnapshot(w io.Writer, stats []DescriptorStat) error {
	return Snapshot(stats).Write(w)
}
