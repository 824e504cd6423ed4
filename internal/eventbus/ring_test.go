package eventbus

import (
	"encoding/json"
	"testing"
	"time"
)

func appendFrame(t *testing.T, r *Ring, txID string) string {
	t.Helper()
	id, err := r.Append(&Frame{
		TxID: txID,
		Tables: []TableChange{{
			Name:        "tasks",
			PKs:         []string{"t1"},
			RowVersions: map[string]int64{"t1": 1},
			Diffs:       map[string]Diff{"t1": {Set: map[string]any{"title": "x"}}},
		}},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return id
}

func TestAppendAssignsOrderedIDs(t *testing.T) {
	r := NewRing(Config{})
	a := appendFrame(t, r, "tx1")
	b := appendFrame(t, r, "tx2")
	c := appendFrame(t, r, "tx3")
	if !(a < b && b < c) {
		t.Fatalf("ids out of order: %s %s %s", a, b, c)
	}
}

func TestFrameSerialization(t *testing.T) {
	r := NewRing(Config{})
	_, sub := r.Subscribe("", 4)
	defer r.Unsubscribe(sub)

	id, err := r.Append(&Frame{
		TxID: "tx1",
		Tables: []TableChange{{
			Name:        "tasks",
			PKs:         []string{"t1", "t2"},
			RowVersions: map[string]int64{"t1": 3},
			Diffs: map[string]Diff{
				"t1": {Set: map[string]any{"done": true}},
				"t2": {}, // delete: empty diff, no version entry
			},
		}},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	d := <-sub.C()
	var decoded map[string]any
	if err := json.Unmarshal(d.Data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["eventId"] != id || decoded["txId"] != "tx1" {
		t.Fatalf("frame = %v", decoded)
	}
	tables := decoded["tables"].([]any)
	tc := tables[0].(map[string]any)
	diffs := tc["diffs"].(map[string]any)
	if len(diffs["t2"].(map[string]any)) != 0 {
		t.Fatalf("delete diff = %v, want empty object", diffs["t2"])
	}
	if _, ok := tc["rowVersions"].(map[string]any)["t2"]; ok {
		t.Fatal("deleted pk has a rowVersions entry")
	}
}

func TestLiveFanout(t *testing.T) {
	r := NewRing(Config{})
	_, sub := r.Subscribe("", 4)
	defer r.Unsubscribe(sub)

	id := appendFrame(t, r, "tx1")
	d := <-sub.C()
	if d.ID != id || d.Event != EventMutation {
		t.Fatalf("delivery = %+v", d)
	}
}

func TestResumeReplaysStrictSuffix(t *testing.T) {
	r := NewRing(Config{})
	first := appendFrame(t, r, "tx1")
	second := appendFrame(t, r, "tx2")
	third := appendFrame(t, r, "tx3")

	replay, sub := r.Subscribe(first, 4)
	defer r.Unsubscribe(sub)
	if len(replay) != 2 || replay[0].ID != second || replay[1].ID != third {
		t.Fatalf("replay = %+v", replay)
	}
	for _, d := range replay {
		if d.Event != EventMutation {
			t.Fatalf("event = %s", d.Event)
		}
	}
}

func TestResumeAtNewestReplaysNothing(t *testing.T) {
	r := NewRing(Config{})
	appendFrame(t, r, "tx1")
	newest := appendFrame(t, r, "tx2")

	replay, sub := r.Subscribe(newest, 4)
	defer r.Unsubscribe(sub)
	if len(replay) != 0 {
		t.Fatalf("replay = %+v", replay)
	}
}

func TestResumeEvictedRecovers(t *testing.T) {
	r := NewRing(Config{BufferCap: 2})
	first := appendFrame(t, r, "tx1")
	appendFrame(t, r, "tx2")
	appendFrame(t, r, "tx3") // evicts tx1

	replay, sub := r.Subscribe(first, 4)
	defer r.Unsubscribe(sub)
	if len(replay) != 1 || replay[0].Event != EventRecover {
		t.Fatalf("replay = %+v, want single recover", replay)
	}
	if replay[0].ID != "" {
		t.Fatalf("recover carries id %q", replay[0].ID)
	}
	if string(replay[0].Data) != "{}" {
		t.Fatalf("recover data = %s", replay[0].Data)
	}
}

func TestResumeUnknownIDRecovers(t *testing.T) {
	r := NewRing(Config{})
	appendFrame(t, r, "tx1")

	replay, sub := r.Subscribe("01ZZZZZZZZZZZZZZZZZZZZZZZZ", 4)
	defer r.Unsubscribe(sub)
	if len(replay) != 1 || replay[0].Event != EventRecover {
		t.Fatalf("replay = %+v", replay)
	}
}

func TestCapPruning(t *testing.T) {
	r := NewRing(Config{BufferCap: 3})
	for i := 0; i < 10; i++ {
		appendFrame(t, r, "tx")
	}
	if st := r.Stats(); st.Size != 3 {
		t.Fatalf("size = %d, want 3", st.Size)
	}
}

func TestAgePruning(t *testing.T) {
	now := time.Unix(0, 0)
	r := NewRingAt(Config{BufferAge: 10 * time.Second}, func() time.Time { return now })

	old := appendFrame(t, r, "tx1")
	now = now.Add(11 * time.Second)
	fresh := appendFrame(t, r, "tx2")

	st := r.Stats()
	if st.Size != 1 || st.OldestID != fresh {
		t.Fatalf("stats = %+v (old id %s should be gone)", st, old)
	}
}

func TestSlowSubscriberSevered(t *testing.T) {
	r := NewRing(Config{})
	_, sub := r.Subscribe("", 1)

	appendFrame(t, r, "tx1") // fills the buffer
	appendFrame(t, r, "tx2") // overflows, severs

	first, ok := <-sub.C()
	if !ok || first.Event != EventMutation {
		t.Fatalf("first = %+v ok=%v", first, ok)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel still open after overflow")
	}
	if !sub.Dropped() {
		t.Fatal("dropped flag not set")
	}
	// Unsubscribe after the ring already severed must not panic.
	r.Unsubscribe(sub)
}

func TestClearEmitsRecover(t *testing.T) {
	r := NewRing(Config{})
	appendFrame(t, r, "tx1")
	_, sub := r.Subscribe("", 4)
	defer r.Unsubscribe(sub)

	r.Clear()
	d := <-sub.C()
	if d.Event != EventRecover {
		t.Fatalf("delivery = %+v", d)
	}
	if st := r.Stats(); st.Size != 0 {
		t.Fatalf("size = %d after clear", st.Size)
	}
}

func TestCloseSeversQuietly(t *testing.T) {
	r := NewRing(Config{})
	_, sub := r.Subscribe("", 4)

	r.Close()
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel open after close")
	}
	if sub.Dropped() {
		t.Fatal("close must not mark subscribers dropped")
	}
	if replay, s := r.Subscribe("", 1); s != nil || len(replay) != 1 || replay[0].Event != EventRecover {
		t.Fatalf("subscribe after close = %+v, %v", replay, s)
	}
}
