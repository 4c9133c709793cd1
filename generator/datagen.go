package generator

import (
	"math/rand"
	"time"

	"github.com/fixtura/fixtura/schema"
)

// Values is the default ValueGenerator: it completes a partial row with
// random values honoring each field's type and length. Auto-increment
// identifiers and foreign-key fields are never generated; foreign keys
// are the generator's responsibility, not random data.
type Values struct {
	rnd *rand.Rand
}

// NewValues returns a Values backed by a deterministic source when seed
// is non-zero, and a time-seeded one otherwise.
func NewValues(seed int64) *Values {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Values{rnd: rand.New(rand.NewSource(seed))}
}

// RandomRecordData returns a copy of partial with every missing
// non-relation field filled in.
func (g *Values) RandomRecordData(fields []*schema.Field, partial map[string]any) map[string]any {
	data := make(map[string]any, len(fields))
	for k, v := range partial {
		data[k] = v
	}
	for _, f := range fields {
		if _, ok := data[f.Name]; ok {
			continue
		}
		if f.AutoIncrement || f.Foreign != "" {
			continue
		}
		data[f.Name] = g.value(f)
	}
	return data
}

const letters = "abcdefghijklmnopqrstuvwxyz"

func (g *Values) value(f *schema.Field) any {
	switch f.Type {
	case schema.TypeBoolean:
		return g.rnd.Intn(2) == 1
	case schema.TypeInteger:
		limit := 1 << 30
		if f.Length > 0 && f.Length < 10 {
			limit = 1
			for i := 0; i < f.Length; i++ {
				limit *= 10
			}
		}
		return g.rnd.Intn(limit)
	case schema.TypeDecimal, schema.TypeFloat:
		return float64(g.rnd.Intn(100000)) / 100
	case schema.TypeDate:
		return g.randTime().Format("2006-01-02")
	case schema.TypeTime:
		return g.randTime().Format("15:04")
	case schema.TypeTimestamp:
		return g.randTime().Format("2006-01-02 15:04:05")
	case schema.TypeEnum:
		if len(f.Values) > 0 {
			return f.Values[g.rnd.Intn(len(f.Values))]
		}
		return ""
	case schema.TypeBlob:
		b := make([]byte, g.strLen(f, 16))
		g.rnd.Read(b)
		return b
	default:
		// string, clob and anything unmapped
		n := g.strLen(f, 12)
		b := make([]byte, n)
		for i := range b {
			b[i] = letters[g.rnd.Intn(len(letters))]
		}
		return string(b)
	}
}

func (g *Values) strLen(f *schema.Field, def int) int {
	if f.Length > 0 && f.Length < def {
		return f.Length
	}
	return def
}

func (g *Values) randTime() time.Time {
	// A fixed window keeps generated dates plausible.
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(g.rnd.Int63n(int64(20 * 365 * 24 * time.Hour))))
}
