package planting

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garden-pi/garden-pi/controller"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
	"github.com/garden-pi/garden-pi/controller/storage"
)

type nopValves struct{}

func (nopValves) SetValve(int, bool) error { return nil }

func newTestPlantings(t *testing.T) (*Controller, *zone.Controller) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "plantings.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tc := controller.TestController(store)
	zones, err := zone.New(zone.Config{}, tc, nopValves{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(zones.Stop)
	c, err := New(tc, zones)
	if err != nil {
		t.Fatal(err)
	}
	return c, zones
}

func testZone(t *testing.T, zones *zone.Controller) zone.Zone {
	t.Helper()
	id, err := zones.Create(zone.Zone{
		Name: "bed", Kind: zone.Plantable,
		Area: 64, Flow: 40, Efficiency: 0.85, SWHC: 1.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	z, _ := zones.Get(id)
	return z
}

func testCrop(t *testing.T, c *Controller) Crop {
	t.Helper()
	id, err := c.CreateCrop(Crop{
		Name: "tomato",
		Stages: [4]Stage{
			{Days: 35, Kc: 0.70},
			{Days: 45, Kc: 0.70, N: 2, FertDays: 14},
			{Days: 70, Kc: 1.15, N: 3, P: 1, K: 2, FertDays: 14},
			{Days: 30, Kc: 0.80},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	crop, _ := c.GetCrop(id)
	return crop
}

func TestStageBoundaries(t *testing.T) {
	crop := Crop{
		Stages: [4]Stage{
			{Days: 35, Kc: 0.70},
			{Days: 45, Kc: 0.75},
			{Days: 70, Kc: 1.15},
			{Days: 30, Kc: 0.80},
		},
	}
	cases := []struct {
		age  int
		want float64
	}{
		{0, 0.70},
		{34, 0.70},
		{35, 0.75},  // init boundary is cumulative
		{79, 0.75},
		{80, 1.15},  // init+dev
		{149, 1.15},
		{150, 0.80}, // init+dev+mid
		{500, 0.80}, // beyond the table is late stage
	}
	for _, tc := range cases {
		if got := crop.StageAt(tc.age).Kc; got != tc.want {
			t.Errorf("age %d: expected kc %.2f, got %.2f", tc.age, tc.want, got)
		}
	}
}

func TestPlantingCRUDUpdatesZone(t *testing.T) {
	c, zones := newTestPlantings(t)
	z := testZone(t, zones)
	crop := testCrop(t, c)

	id, err := c.Create(Planting{
		Zone: z.ID, Crop: crop.ID,
		Planted: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		MAD:     40, Count: 4, Area: 16,
	})
	if err != nil {
		t.Fatalf("create planting: %v", err)
	}
	got, _ := zones.Get(z.ID)
	if got.MAD != 40 || got.Plantings != 1 {
		t.Errorf("expected mad 40 / 1 planting, got %f / %d", got.MAD, got.Plantings)
	}

	if _, err := c.Create(Planting{
		Zone: z.ID, Crop: crop.ID,
		Planted: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		MAD:     60,
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = zones.Get(z.ID)
	if got.MAD != 50 || got.Plantings != 2 {
		t.Errorf("expected mean mad 50 / 2 plantings, got %f / %d", got.MAD, got.Plantings)
	}

	if err := c.Delete(id); err != nil {
		t.Fatal(err)
	}
	got, _ = zones.Get(z.ID)
	if got.MAD != 60 || got.Plantings != 1 {
		t.Errorf("expected mad 60 / 1 planting after delete, got %f / %d", got.MAD, got.Plantings)
	}
}

func TestDeleteSolePlantingResetsZone(t *testing.T) {
	c, zones := newTestPlantings(t)
	z := testZone(t, zones)
	crop := testCrop(t, c)

	id, err := c.Create(Planting{
		Zone: z.ID, Crop: crop.ID,
		Planted: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		MAD:     45,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(id); err != nil {
		t.Fatal(err)
	}
	got, _ := zones.Get(z.ID)
	if got.MAD != 0 || got.Plantings != 0 {
		t.Errorf("expected mad 0 / 0 plantings, got %f / %d", got.MAD, got.Plantings)
	}
}

func TestUpdatePlantingsIdempotent(t *testing.T) {
	c, zones := newTestPlantings(t)
	z := testZone(t, zones)
	crop := testCrop(t, c)

	if _, err := c.Create(Planting{
		Zone: z.ID, Crop: crop.ID,
		Planted: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		MAD:     35,
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdatePlantings(z.ID); err != nil {
		t.Fatal(err)
	}
	first, _ := zones.Get(z.ID)
	if err := c.UpdatePlantings(z.ID); err != nil {
		t.Fatal(err)
	}
	second, _ := zones.Get(z.ID)
	if first.MAD != second.MAD || first.Plantings != second.Plantings {
		t.Errorf("repeated recompute changed values: %f/%d vs %f/%d",
			first.MAD, first.Plantings, second.MAD, second.Plantings)
	}
}

func TestPlantingValidation(t *testing.T) {
	c, zones := newTestPlantings(t)
	z := testZone(t, zones)
	crop := testCrop(t, c)
	planted := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	cases := []Planting{
		{Crop: crop.ID, Planted: planted},                       // no zone
		{Zone: z.ID, Planted: planted},                          // no crop
		{Zone: z.ID, Crop: crop.ID},                             // no date
		{Zone: z.ID, Crop: crop.ID, Planted: planted, MAD: 150}, // bad mad
		{Zone: "99", Crop: crop.ID, Planted: planted},           // missing zone
		{Zone: z.ID, Crop: "99", Planted: planted},              // missing crop
	}
	for i, p := range cases {
		if _, err := c.Create(p); err == nil {
			t.Errorf("case %d: expected rejection", i)
		}
	}
	// No partial writes happened
	all, _ := c.List()
	if len(all) != 0 {
		t.Errorf("rejected plantings must not be stored, found %d", len(all))
	}

	if err := c.Delete("42"); !errors.Is(err, storage.ErrDoesNotExist) {
		t.Errorf("expected ErrDoesNotExist, got %v", err)
	}
}

func TestAgeOn(t *testing.T) {
	p := Planting{
		Planted:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AgeOffset: 21, // transplanted three weeks old
	}
	day := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	if got := p.AgeOn(day); got != 31 {
		t.Errorf("expected age 31, got %d", got)
	}
}
