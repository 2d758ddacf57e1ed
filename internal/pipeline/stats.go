package pipeline

import (
	"math"
	"strconv"
	"strings"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

// Aggregate computes the tracked statistics over validated rows. Averages
// are rounded to one decimal (steps to a whole number) to match the stored
// and reported precision.
func Aggregate(rows []record.Row) record.Statistics {
	if len(rows) == 0 {
		return record.Statistics{}
	}

	var sumHR, sumSpO2, sumTemp, sumSys, sumDia, sumSteps float64
	maxHR := math.Inf(-1)
	minHR := math.Inf(1)
	maxTemp := math.Inf(-1)
	minSpO2 := math.Inf(1)

	for _, row := range rows {
		hr := metricValue(row, "heart_rate")
		spo2 := metricValue(row, "spo2")
		temp := metricValue(row, "temp_c")

		sumHR += hr
		sumSpO2 += spo2
		sumTemp += temp
		sumSys += metricValue(row, "systolic_bp")
		sumDia += metricValue(row, "diastolic_bp")
		sumSteps += metricValue(row, "steps")

		maxHR = math.Max(maxHR, hr)
		minHR = math.Min(minHR, hr)
		maxTemp = math.Max(maxTemp, temp)
		minSpO2 = math.Min(minSpO2, spo2)
	}

	n := float64(len(rows))
	return record.Statistics{
		AvgHeartRate: round1(sumHR / n),
		AvgSpO2:      round1(sumSpO2 / n),
		AvgTemp:      round1(sumTemp / n),
		AvgSystolic:  round1(sumSys / n),
		AvgDiastolic: round1(sumDia / n),
		AvgSteps:     math.Round(sumSteps / n),
		MaxHeartRate: maxHR,
		MinHeartRate: minHR,
		MaxTemp:      maxTemp,
		MinSpO2:      minSpO2,
	}
}

func metricValue(row record.Row, field string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(row[field]), 64)
	if err != nil {
		return 0
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
