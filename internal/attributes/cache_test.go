package attributes

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/yourco/faceid/internal/models"
	"github.com/yourco/faceid/internal/vision"
)

type stubEstimator struct {
	ga  *vision.GenderAge
	err error
}

func (s stubEstimator) Predict(crop image.Image) (*vision.GenderAge, error) {
	return s.ga, s.err
}

func TestOnAdmitStoresEstimate(t *testing.T) {
	cache := NewCache()
	est := stubEstimator{ga: &vision.GenderAge{Gender: "female", Age: 30, AgeRange: "30-35"}}
	hook := OnAdmit(est, cache)

	entry := models.RegistryEntry{PersonID: "person_001", FirstSeen: time.Now(), LastSeen: time.Now()}
	hook(entry, image.NewRGBA(image.Rect(0, 0, 4, 4)))

	got, ok := cache.Get("person_001")
	if !ok {
		t.Fatal("expected an estimate to be cached")
	}
	if got.Gender != "female" || got.Age != 30 {
		t.Fatalf("unexpected cached estimate: %+v", got)
	}
}

func TestOnAdmitIgnoresEstimationFailure(t *testing.T) {
	cache := NewCache()
	hook := OnAdmit(stubEstimator{err: errors.New("boom")}, cache)

	hook(models.RegistryEntry{PersonID: "person_002"}, image.NewRGBA(image.Rect(0, 0, 4, 4)))

	if _, ok := cache.Get("person_002"); ok {
		t.Fatal("expected no cached estimate after a failed prediction")
	}
}

func TestOnAdmitNilEstimatorIsNoop(t *testing.T) {
	cache := NewCache()
	hook := OnAdmit(nil, cache)
	hook(models.RegistryEntry{PersonID: "person_003"}, image.NewRGBA(image.Rect(0, 0, 4, 4)))

	if _, ok := cache.Get("person_003"); ok {
		t.Fatal("expected no cached estimate when the estimator is nil")
	}
}
