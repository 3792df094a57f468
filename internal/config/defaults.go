package config

import "fmt"

func defaultPlans() []PlanConfig {
	monthly := []InstallmentConfig{
		{Amount: "600", Currency: "GBP", Due: "2026-09-25"},
	}
	for m := 0; m < 8; m++ {
		y, mo := 2026, 9+m
		if mo > 12 {
			y, mo = 2027, mo-12
		}
		monthly = append(monthly, InstallmentConfig{
			Amount:   "75000",
			Currency: "LKR",
			Due:      fmt.Sprintf("%04d-%02d-25", y, mo),
		})
	}

	return []PlanConfig{
		{Name: "Plan 01", Installments: []InstallmentConfig{
			{Amount: "549000", Currency: "LKR", Due: "2026-09-25"},
			{Amount: "600", Currency: "GBP", Due: "2026-09-25"},
		}},
		{Name: "Plan 02", Installments: []InstallmentConfig{
			{Amount: "194000", Currency: "LKR", Due: "2026-09-25"},
			{Amount: "600", Currency: "GBP", Due: "2026-09-25"},
			{Amount: "194000", Currency: "LKR", Due: "2027-01-25"},
			{Amount: "194000", Currency: "LKR", Due: "2027-03-25"},
		}},
		{Name: "Plan 03", Installments: monthly},
	}
}

// defaultTrainingPlan is the half-marathon block seeded into a user's
// fitness log on first access.
func defaultTrainingPlan() []TrainingRunConfig {
	type week struct {
		phase string
		days  []string
		runs  [][2]string
	}
	base := [][2]string{{"Easy Run", "3-4km"}, {"Run/Walk", "3-4km"}, {"Long Run", "5-8km"}}
	build := [][2]string{{"Steady Run", "4-5km"}, {"Mod Intensity", "5-6km"}, {"Long Run", "10-12km"}}
	peak := [][2]string{{"Tempo", "5-6km"}, {"Intervals", "7km"}, {"Race Sim", "15-18km"}}

	weeks := []week{
		{"Base", []string{"2026-02-17", "2026-02-19", "2026-02-21"}, base},
		{"Base", []string{"2026-02-24", "2026-02-26", "2026-02-28"}, base},
		{"Base", []string{"2026-03-03", "2026-03-05", "2026-03-07"}, base},
		{"Build", []string{"2026-03-10", "2026-03-12", "2026-03-14"}, build},
		{"Build", []string{"2026-03-17", "2026-03-19", "2026-03-21"}, build},
		{"Build", []string{"2026-03-24", "2026-03-26", "2026-03-28"}, build},
		{"Peak", []string{"2026-03-31", "2026-04-02", "2026-04-04"}, peak},
		{"Peak", []string{"2026-04-07", "2026-04-09", "2026-04-11"}, peak},
		{"Taper", []string{"2026-04-14", "2026-04-16", "2026-04-18"}, [][2]string{{"Easy", "5km"}, {"Easy", "4km"}, {"Short", "3km"}}},
	}

	var out []TrainingRunConfig
	for _, w := range weeks {
		for i, day := range w.days {
			out = append(out, TrainingRunConfig{
				Phase:       w.phase,
				Date:        day,
				Description: w.runs[i][0],
				DistanceCmd: w.runs[i][1],
			})
		}
	}
	return append(out, TrainingRunConfig{Phase: "RACE", Date: "2026-04-26", Description: "HALF MARATHON", DistanceCmd: "21.1km"})
}
