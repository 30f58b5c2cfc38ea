/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package cluster

import (
	"testing"
	"time"
)

func TestHealthDetectorPhiZeroBeforeMinSamples(t *testing.T) {
	d := NewHealthDetector()
	d.Beat()
	if phi := d.Phi(); phi != 0 {
		t.Errorf("expected phi 0 before minSamples reached, got %f", phi)
	}
}

func TestHealthDetectorPhiRisesWithSilence(t *testing.T) {
	d := NewHealthDetector()
	for i := 0; i < 10; i++ {
		d.Beat()
		time.Sleep(2 * time.Millisecond)
	}

	early := d.Phi()
	time.Sleep(100 * time.Millisecond)
	late := d.Phi()

	if late <= early {
		t.Errorf("expected phi to rise with silence: early=%f late=%f", early, late)
	}
}

func TestHealthDetectorSuspectFollowsThreshold(t *testing.T) {
	d := NewHealthDetector()
	for i := 0; i < 10; i++ {
		d.Beat()
		time.Sleep(time.Millisecond)
	}
	if d.Suspect() {
		t.Error("expected not suspect immediately after a beat")
	}
}
