// Package analytics defines the derived metric views produced by the
// aggregation engine. None of these types are persisted.
package analytics

import "time"

// ScoreSet groups the four performance dimensions.
type ScoreSet struct {
	ProblemSolving float64
	Collaboration  float64
	Initiative     float64
	Overall        float64
}

// EmployeeMetrics is an employee's identity plus their most recent scores.
// Scores are all zero when the employee has no contributions yet.
type EmployeeMetrics struct {
	EmployeeID string
	Name       string
	Team       string
	Department string
	Scores     ScoreSet
}

// ScorePoint is one element of an employee's score history.
type ScorePoint struct {
	CalculatedAt time.Time
	Scores       ScoreSet
}

// TeamMetrics is the rollup for one team label.
type TeamMetrics struct {
	Team          string
	MemberCount   int
	AverageScores ScoreSet
}

// DepartmentMetrics is the rollup for one department label. TeamCount is the
// number of distinct team labels among its employees.
type DepartmentMetrics struct {
	Department    string
	EmployeeCount int
	TeamCount     int
	AverageScores ScoreSet
}

// OverallStats is the tenant-wide aggregate view.
type OverallStats struct {
	TotalEmployees    int
	TotalInteractions int
	TotalKudos        int
	AverageScores     ScoreSet
}

// TopContributor is one row of the top-contributors ranking.
type TopContributor struct {
	EmployeeID string
	Name       string
	Team       string
	Department string
	Overall    float64
}
