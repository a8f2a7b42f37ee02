package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BenchmarkResult stores the results of a benchmark
type BenchmarkResult struct {
	BenchmarkType string
	NumKeys       int
	ValueSize     int
	Mode          string
	Compression   string
	Operations    int
	Duration      float64 // seconds
	Throughput    float64 // ops/sec
	Latency       float64 // µs/op
	HitRate       float64 // For lookup benchmarks
	EntriesPerSec float64 // For scan benchmarks
	Timestamp     time.Time
}

var csvHeader = []string{
	"Timestamp", "BenchmarkType", "NumKeys", "ValueSize", "Mode", "Compression",
	"Operations", "Duration", "Throughput", "Latency", "HitRate", "EntriesPerSec",
}

// SaveResultCSV saves benchmark results to a CSV file
func SaveResultCSV(results []BenchmarkResult, filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.BenchmarkType,
			strconv.Itoa(r.NumKeys),
			strconv.Itoa(r.ValueSize),
			r.Mode,
			r.Compression,
			strconv.Itoa(r.Operations),
			fmt.Sprintf("%.4f", r.Duration),
			fmt.Sprintf("%.2f", r.Throughput),
			fmt.Sprintf("%.3f", r.Latency),
			fmt.Sprintf("%.2f", r.HitRate),
			fmt.Sprintf("%.2f", r.EntriesPerSec),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadResultCSV loads benchmark results from a CSV file
func LoadResultCSV(filename string) ([]BenchmarkResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	// Skip header
	if len(records) <= 1 {
		return []BenchmarkResult{}, nil
	}
	records = records[1:]

	results := make([]BenchmarkResult, 0, len(records))
	for _, record := range records {
		if len(record) < len(csvHeader) {
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339, record[0])
		numKeys, _ := strconv.Atoi(record[2])
		valueSize, _ := strconv.Atoi(record[3])
		operations, _ := strconv.Atoi(record[6])
		duration, _ := strconv.ParseFloat(record[7], 64)
		throughput, _ := strconv.ParseFloat(record[8], 64)
		latency, _ := strconv.ParseFloat(record[9], 64)
		hitRate, _ := strconv.ParseFloat(record[10], 64)
		entriesPerSec, _ := strconv.ParseFloat(record[11], 64)

		results = append(results, BenchmarkResult{
			Timestamp:     timestamp,
			BenchmarkType: record[1],
			NumKeys:       numKeys,
			ValueSize:     valueSize,
			Mode:          record[4],
			Compression:   record[5],
			Operations:    operations,
			Duration:      duration,
			Throughput:    throughput,
			Latency:       latency,
			HitRate:       hitRate,
			EntriesPerSec: entriesPerSec,
		})
	}

	return results, nil
}

// PrintResultTable prints a formatted table of benchmark results
func PrintResultTable(results []BenchmarkResult) {
	if len(results) == 0 {
		fmt.Println("No results to display")
		return
	}

	fmt.Println("+------------------+--------+---------+--------------+-----------+----------+")
	fmt.Println("| Benchmark Type   | Keys   | ValSize | Throughput   | Latency   | Hit Rate |")
	fmt.Println("+------------------+--------+---------+--------------+-----------+----------+")

	for _, r := range results {
		hitRateStr := "-"
		if r.HitRate > 0 {
			hitRateStr = fmt.Sprintf("%.2f%%", r.HitRate)
		}

		latencyUnit := "µs"
		latency := r.Latency
		if latency > 1000 {
			latencyUnit = "ms"
			latency /= 1000
		}

		fmt.Printf("| %-16s | %6d | %7d | %12.2f | %7.2f%s | %8s |\n",
			r.BenchmarkType,
			r.NumKeys,
			r.ValueSize,
			r.Throughput,
			latency, latencyUnit,
			hitRateStr)
	}
	fmt.Println("+------------------+--------+---------+--------------+-----------+----------+")
}
