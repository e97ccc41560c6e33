package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

func TestHub_FanOutByGame(t *testing.T) {
	h := NewHub(4)
	a1, cancelA1 := h.Subscribe("a")
	a2, cancelA2 := h.Subscribe("a")
	b, cancelB := h.Subscribe("b")
	defer cancelA1()
	defer cancelA2()
	defer cancelB()

	n := h.Publish(game.Snapshot{ID: "a", Seq: 1, Moves: 1})
	assert.Equal(t, 2, n)

	assert.Equal(t, 1, (<-a1).Moves)
	assert.Equal(t, 1, (<-a2).Moves)
	select {
	case s := <-b:
		t.Fatalf("unexpected snapshot for b: %+v", s)
	default:
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("a")
	defer cancel()

	assert.Equal(t, 1, h.Publish(game.Snapshot{ID: "a", Seq: 1, Moves: 1}))
	assert.Equal(t, 0, h.Publish(game.Snapshot{ID: "a", Seq: 2, Moves: 2}))
	assert.Equal(t, 1, (<-ch).Moves)
}

func TestHub_Cancel(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe("a")
	require.Equal(t, 1, h.Subscribers("a"))

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers("a"))
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Publish(game.Snapshot{ID: "a"}))
}

func TestHub_DropsOutOfOrderSnapshots(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe("a")
	defer cancel()

	assert.Equal(t, 1, h.Publish(game.Snapshot{ID: "a", Seq: 3, Phase: game.PhaseIdle}))
	assert.Equal(t, 0, h.Publish(game.Snapshot{ID: "a", Seq: 2, Phase: game.PhaseResolving}))
	assert.Equal(t, 0, h.Publish(game.Snapshot{ID: "a", Seq: 3, Phase: game.PhaseResolving}))
	assert.Equal(t, 1, h.Publish(game.Snapshot{ID: "a", Seq: 4, Phase: game.PhaseOneSelected}))

	assert.Equal(t, game.PhaseIdle, (<-ch).Phase)
	assert.Equal(t, game.PhaseOneSelected, (<-ch).Phase)
}

func TestHub_Forget(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe("a")
	require.Equal(t, 1, h.Publish(game.Snapshot{ID: "a", Seq: 5}))

	h.Forget("a")
	assert.Equal(t, 0, h.Subscribers("a"))
	<-ch
	_, open := <-ch
	assert.False(t, open)
	cancel() // still safe after Forget

	// A reused ID starts from scratch.
	ch2, cancel2 := h.Subscribe("a")
	defer cancel2()
	assert.Equal(t, 1, h.Publish(game.Snapshot{ID: "a", Seq: 1}))
	assert.Equal(t, uint64(1), (<-ch2).Seq)
}
