// grovebench - serialization benchmark runner
//
// Generates synthetic instance trees at several sizes, then times
// serialize and deserialize through each chunk codec.
//
// Output: a markdown table on stdout, progress on stderr.
package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Neumenon/grove/chunk"
	"github.com/Neumenon/grove/grove"
)

type caseResult struct {
	Instances int
	Codec     string
	Bytes     int
	Encode    time.Duration
	Decode    time.Duration
}

var sizes = []int{100, 1000, 10000}

var codecs = []struct {
	name  string
	codec chunk.Codec
}{
	{"none", chunk.None},
	{"snappy", chunk.Snappy},
	{"zstd", chunk.Zstd},
}

func main() {
	fmt.Fprintln(os.Stderr, "grove benchmark runner")
	fmt.Fprintln(os.Stderr, "======================")

	schema := benchSchema()
	var results []caseResult

	for _, n := range sizes {
		dom := buildDom(n, rand.New(rand.NewSource(int64(n))))
		fmt.Fprintf(os.Stderr, "built dom with %d instances\n", dom.Len())

		for _, c := range codecs {
			var buf bytes.Buffer
			start := time.Now()
			err := grove.SerializeWith(&buf, dom, schema, grove.WithCodec(c.codec))
			encode := time.Since(start)
			if err != nil {
				fmt.Fprintf(os.Stderr, "serialize (%s, n=%d): %v\n", c.name, n, err)
				os.Exit(1)
			}

			start = time.Now()
			result, err := grove.Deserialize(bytes.NewReader(buf.Bytes()), schema)
			decode := time.Since(start)
			if err != nil {
				fmt.Fprintf(os.Stderr, "deserialize (%s, n=%d): %v\n", c.name, n, err)
				os.Exit(1)
			}
			if result.Dom.Len() != dom.Len() {
				fmt.Fprintf(os.Stderr, "round trip lost instances: %d != %d\n", result.Dom.Len(), dom.Len())
				os.Exit(1)
			}

			results = append(results, caseResult{
				Instances: dom.Len(),
				Codec:     c.name,
				Bytes:     buf.Len(),
				Encode:    encode,
				Decode:    decode,
			})
		}
	}

	fmt.Println("| instances | codec | bytes | bytes/inst | encode | decode |")
	fmt.Println("|----------:|-------|------:|-----------:|-------:|-------:|")
	for _, r := range results {
		fmt.Printf("| %d | %s | %d | %.1f | %s | %s |\n",
			r.Instances, r.Codec, r.Bytes,
			float64(r.Bytes)/float64(r.Instances), r.Encode, r.Decode)
	}
}

// benchSchema covers every class the generator emits.
func benchSchema() grove.MapSchema {
	return grove.MapSchema{
		"Folder": {},
		"Model": {
			"PrimaryPart": grove.TypeReference,
		},
		"Part": {
			"Anchored":     grove.TypeBool,
			"BrickColor":   grove.TypeEnum,
			"CFrame":       grove.TypeCFrame,
			"Size":         grove.TypeVector3,
			"Transparency": grove.TypeFloat32,
		},
		"Script": {
			"Enabled": grove.TypeBool,
			"Source":  grove.TypeString,
		},
	}
}

// buildDom grows a tree of folders holding parts and scripts until it
// reaches roughly n instances. Values are deterministic for a given n.
func buildDom(n int, rng *rand.Rand) *grove.WeakDom {
	root := grove.NewInstanceBuilder("Folder").WithName("BenchRoot")
	dom := grove.NewWeakDom(root)

	var parts []grove.Ref
	for dom.Len() < n {
		model := grove.NewInstanceBuilder("Model").WithName(fmt.Sprintf("Model%d", dom.Len()))
		for i := 0; i < 8 && dom.Len()+i < n; i++ {
			part := grove.NewInstanceBuilder("Part").
				WithName(fmt.Sprintf("Part%d", i)).
				WithProperty("Anchored", grove.NewBool(rng.Intn(2) == 0)).
				WithProperty("Transparency", grove.NewFloat32(rng.Float32())).
				WithProperty("Size", grove.NewVector3(rng.Float32()*16, rng.Float32()*16, rng.Float32()*16)).
				WithProperty("BrickColor", grove.NewEnum("BrickColor", uint32(rng.Intn(64)))).
				WithProperty("CFrame", grove.NewCFrame(randomCFrame(rng)))
			model.AddChild(part)
		}
		model.AddChild(grove.NewInstanceBuilder("Script").
			WithProperty("Enabled", grove.NewBool(true)).
			WithProperty("Source", grove.NewString("print(\"hello from bench\")")))

		ref, err := dom.Insert(dom.RootRef(), model)
		if err != nil {
			panic(err)
		}
		inst := dom.Get(ref)
		for _, child := range inst.Children() {
			if dom.Get(child).Class == "Part" {
				parts = append(parts, child)
			}
		}
		// Point each model at one of its parts, like a primary part.
		if len(parts) > 0 {
			inst.Properties["PrimaryPart"] = grove.NewReference(parts[rng.Intn(len(parts))])
		}
	}
	return dom
}

// randomCFrame mixes axis-aligned and free rotations so both encodings
// get exercised.
func randomCFrame(rng *rand.Rand) grove.CFrame {
	cf := grove.IdentityCFrame()
	cf.Position = grove.Vector3{
		X: rng.Float32() * 512,
		Y: rng.Float32() * 512,
		Z: rng.Float32() * 512,
	}
	if rng.Intn(2) == 0 {
		for i := range cf.Rotation {
			cf.Rotation[i] = rng.Float32()*2 - 1
		}
	}
	return cf
}
