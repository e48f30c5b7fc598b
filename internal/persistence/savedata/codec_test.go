package savedata

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"dshnews.game/internal/sim/geom"
)

func randomRecord(rng *rand.Rand) *Record {
	r := NewRecord()
	r.SceneToSave = fmt.Sprintf("LOC_%d", rng.Intn(1000))
	for i := 0; i < rng.Intn(6); i++ {
		r.SetPosition(fmt.Sprintf("p%d", i), geom.V(rng.NormFloat64()*1e3, rng.Float64(), -rng.ExpFloat64()))
	}
	for i := 0; i < rng.Intn(6); i++ {
		r.SetFloat(fmt.Sprintf("f%d", i), rng.NormFloat64()*math.Pow(10, float64(rng.Intn(20)-10)))
	}
	for i := 0; i < rng.Intn(6); i++ {
		r.SetBool(fmt.Sprintf("b%d", i), rng.Intn(2) == 0)
	}
	return r
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		want := randomRecord(rng)
		b, err := Encode(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("decode: %v\n%s", err, b)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch\n got=%+v\nwant=%+v", got, want)
		}
	}
}

func TestEncode_ExtremeFloatsSurvive(t *testing.T) {
	want := NewRecord()
	want.SetFloat("tiny", math.SmallestNonzeroFloat64)
	want.SetFloat("huge", math.MaxFloat64)
	want.SetFloat("neg_zero_ish", -1e-300)
	want.SetFloat("third", 1.0/3.0)
	want.SetPosition("player", geom.V(0.1, 0.2, 0.30000000000000004))
	b, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for k, v := range want.Floats {
		if math.Float64bits(got.Floats[k]) != math.Float64bits(v) {
			t.Fatalf("float %s: got %v want %v", k, got.Floats[k], v)
		}
	}
	if got.Positions["player"] != want.Positions["player"] {
		t.Fatalf("position: got %+v want %+v", got.Positions["player"], want.Positions["player"])
	}
}

func TestEncode_NaNFails(t *testing.T) {
	r := NewRecord()
	r.SetFloat("bad", math.NaN())
	if _, err := Encode(r); err == nil {
		t.Fatalf("expected NaN encode error")
	}
}

func TestDecode_LegacyWithoutVersion(t *testing.T) {
	r, err := Decode([]byte(`{"sceneToSave":"STREET","characterPosDict":{"player":{"x":1,"y":2,"z":3}},"floatSavedData":null,"boolSavedData":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Version != CurrentVersion || r.SceneToSave != "STREET" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Floats == nil || r.Bools == nil {
		t.Fatalf("maps must be non-nil after decode")
	}
	if p, ok := r.Position("player"); !ok || p != geom.V(1, 2, 3) {
		t.Fatalf("player pos=%+v ok=%v", p, ok)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"sceneToSave":`,
		"missing scene":  `{"floatSavedData":{}}`,
		"bool as number": `{"sceneToSave":"A","boolSavedData":{"door":1}}`,
		"vec missing z":  `{"sceneToSave":"A","characterPosDict":{"p":{"x":1,"y":2}}}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := Decode([]byte(`{"version":9,"sceneToSave":"A"}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("future version err=%v want ErrUnsupportedVersion", err)
	}
}

func TestWriteFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SAVE DATA", "data.sav")
	want := NewRecord()
	want.SceneToSave = "NEWSROOM"
	if _, err := WriteFile(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("dir missing: %v", err)
	}
}

func TestDigest_StableAcrossMapOrder(t *testing.T) {
	a := NewRecord()
	b := NewRecord()
	for i := 0; i < 10; i++ {
		a.SetFloat(fmt.Sprintf("k%d", i), float64(i))
	}
	for i := 9; i >= 0; i-- {
		b.SetFloat(fmt.Sprintf("k%d", i), float64(i))
	}
	if Digest(a) == "" || Digest(a) != Digest(b) {
		t.Fatalf("digest mismatch: %s vs %s", Digest(a), Digest(b))
	}
}

func TestReplaceWith_KeepsPointer(t *testing.T) {
	live := NewRecord()
	held := live
	src := NewRecord()
	src.SceneToSave = "STREET"
	src.SetBool("kiosk", true)
	live.ReplaceWith(src)
	src.SetBool("kiosk", false)
	if held.SceneToSave != "STREET" || !held.Bools["kiosk"] {
		t.Fatalf("replace did not deep copy into the held pointer: %+v", held)
	}
}
