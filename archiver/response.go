package archiver

import (
	"time"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// archiver JSON: one element per requested pv
type pvResponse struct {
	Meta struct {
		Name string `json:"name"`
		Prec string `json:"PREC"`
	} `json:"meta"`
	Data []pvSample `json:"data"`
}

type pvSample struct {
	Secs     int64   `json:"secs"`
	Nanos    int64   `json:"nanos"`
	Val      float64 `json:"val"`
	Severity int     `json:"severity"`
	Status   int     `json:"status"`
}

type pvPayload = []pvResponse

// samples reads the first element only, the archiver answers one pv per request
func samplesOf(p pvPayload) []Mt.Sample {
	if len(p) == 0 {
		return nil
	}
	out := make([]Mt.Sample, len(p[0].Data))
	for i, d := range p[0].Data {
		out[i] = Mt.Sample{
			Time:  time.Unix(d.Secs, d.Nanos).UTC(),
			Value: d.Val,
		}
	}
	return out
}
