package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/docprobe/internal/probe"
)

// ExampleHub_Emit demonstrates emitting an item event and flushing via Close.
func ExampleHub_Emit() {
	var found int
	sink := SinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Status == probe.StatusFound {
				found++
			}
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 4, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		RunID:  UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:     time.Unix(0, 0),
		Stage:  StageItemDone,
		Item:   "EFTA01648557.mp4",
		Status: probe.StatusFound,
		Bytes:  512,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("found: %d\n", found)
	// Output:
	// found: 1
}
