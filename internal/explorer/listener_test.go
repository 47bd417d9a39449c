package explorer

import (
	"encoding/json"
	"testing"
	"time"
)

// TestSubscriptionFrameShapes pins the exact JSON mempool.space expects.
func TestSubscriptionFrameShapes(t *testing.T) {
	want, err := json.Marshal(wantFrame{Action: "want", Data: []string{"blocks", "mempool-blocks", "stats"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(want) != `{"action":"want","data":["blocks","mempool-blocks","stats"]}` {
		t.Errorf("want frame = %s", want)
	}

	track, err := json.Marshal(trackFrame{TrackAddress: "tb1qvault"})
	if err != nil {
		t.Fatal(err)
	}
	if string(track) != `{"track-address":"tb1qvault"}` {
		t.Errorf("track frame = %s", track)
	}
}

func TestNextDelay(t *testing.T) {
	cases := []struct {
		in, ceiling, want time.Duration
	}{
		{5 * time.Second, 60 * time.Second, 10 * time.Second},
		{10 * time.Second, 60 * time.Second, 20 * time.Second},
		{40 * time.Second, 60 * time.Second, 60 * time.Second},
		{60 * time.Second, 60 * time.Second, 60 * time.Second},
	}
	for _, c := range cases {
		if got := nextDelay(c.in, c.ceiling); got != c.want {
			t.Errorf("nextDelay(%v, %v) = %v, want %v", c.in, c.ceiling, got, c.want)
		}
	}
}
