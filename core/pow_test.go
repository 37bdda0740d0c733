package core

import (
	"context"
	"testing"
)

func TestValidProofAgreesWithMineProof(t *testing.T) {
	proof, ok := mineProof(context.Background(), "prevhash", 1)
	if !ok {
		t.Fatal("expected mineProof to find a proof at difficulty 1")
	}
	if !validProof("prevhash", proof, 1) {
		t.Fatalf("mined proof %d did not validate at difficulty 1", proof)
	}
}

func TestMineProofRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A difficulty high enough that no 0xFFF-aligned check point is hit
	// instantly is unnecessary: the first checkpoint (proof 0) already
	// observes ctx.Err() != nil and returns immediately.
	if _, ok := mineProof(ctx, "prevhash", 10); ok {
		t.Fatal("expected mineProof to stop immediately on an already-cancelled context")
	}
}

func TestClampDifficultyBounds(t *testing.T) {
	if got := clampDifficulty(0); got != minDifficulty {
		t.Errorf("clampDifficulty(0) = %d, want %d", got, minDifficulty)
	}
	if got := clampDifficulty(99); got != maxDifficulty {
		t.Errorf("clampDifficulty(99) = %d, want %d", got, maxDifficulty)
	}
	if got := clampDifficulty(5); got != 5 {
		t.Errorf("clampDifficulty(5) = %d, want 5", got)
	}
}

func blocksWithTimestamps(difficulty int, timestamps ...int64) []*Block {
	blocks := make([]*Block, len(timestamps))
	for i, ts := range timestamps {
		blocks[i] = &Block{Timestamp: ts, Difficulty: difficulty}
	}
	return blocks
}

func TestAdjustDifficultyIncreasesWhenBlocksComeTooFast(t *testing.T) {
	// interval=5, target=10s/block -> expected span 40s; actual span 4s is
	// well under half, so difficulty should rise by exactly one step.
	window := blocksWithTimestamps(4, 0, 1, 2, 3, 4)
	got := adjustDifficulty(window, 10, 5)
	if got != 5 {
		t.Fatalf("expected difficulty to increase from 4 to 5 on a fast window, got %d", got)
	}
}

func TestAdjustDifficultyDecreasesWhenBlocksComeTooSlow(t *testing.T) {
	// actual span 1000s is well over double the expected 40s.
	window := blocksWithTimestamps(4, 0, 250, 500, 750, 1000)
	got := adjustDifficulty(window, 10, 5)
	if got != 3 {
		t.Fatalf("expected difficulty to decrease from 4 to 3 on a slow window, got %d", got)
	}
}

func TestAdjustDifficultyHoldsWithinTargetBand(t *testing.T) {
	window := blocksWithTimestamps(4, 0, 10, 20, 30, 40)
	got := adjustDifficulty(window, 10, 5)
	if got != 4 {
		t.Fatalf("expected difficulty to hold at 4 for an on-target window, got %d", got)
	}
}

func TestAdjustDifficultyNeverLeavesClampBounds(t *testing.T) {
	fast := blocksWithTimestamps(maxDifficulty, 0, 1, 2, 3, 4)
	if got := adjustDifficulty(fast, 10, 5); got > maxDifficulty {
		t.Fatalf("expected difficulty to stay within the clamp, got %d", got)
	}
	slow := blocksWithTimestamps(minDifficulty, 0, 1000, 2000, 3000, 4000)
	if got := adjustDifficulty(slow, 10, 5); got < minDifficulty {
		t.Fatalf("expected difficulty to stay within the clamp, got %d", got)
	}
}

func TestAdjustDifficultyFallsBackToInitialOnShortWindow(t *testing.T) {
	window := blocksWithTimestamps(7, 0, 1)
	if got := adjustDifficulty(window, 10, 5); got != initialDifficulty {
		t.Fatalf("expected a too-short window to fall back to %d, got %d", initialDifficulty, got)
	}
}
