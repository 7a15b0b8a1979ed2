// Package report renders leaderboard spreadsheets and volunteer event calendars.
package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"tapkind/internal/leaderboard"
)

const leaderboardSheet = "Leaderboard"

var leaderboardHeader = []string{"Rank", "Name", "Points", "Tips Given", "Volunteer Hours", "Badges"}

// LeaderboardXLSX writes board as a single-sheet workbook. The second return value is a
// suggested file name.
func LeaderboardXLSX(board leaderboard.Board) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(leaderboardSheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", err
	}

	f.SetColWidth(leaderboardSheet, "A", "A", 8)
	f.SetColWidth(leaderboardSheet, "B", "B", 28)
	f.SetColWidth(leaderboardSheet, "C", "E", 16)
	f.SetColWidth(leaderboardSheet, "F", "F", 40)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#2E7D32"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", err
	}

	for i, title := range leaderboardHeader {
		f.SetCellValue(leaderboardSheet, cell(i, 1), title)
	}
	f.SetCellStyle(leaderboardSheet, cell(0, 1), cell(len(leaderboardHeader)-1, 1), headerStyle)

	for i, e := range board.Entries {
		row := i + 2
		hours, _ := e.VolunteerHours.Float64()
		f.SetCellValue(leaderboardSheet, cell(0, row), e.Rank)
		f.SetCellValue(leaderboardSheet, cell(1, row), e.DisplayName)
		f.SetCellValue(leaderboardSheet, cell(2, row), e.Points)
		f.SetCellValue(leaderboardSheet, cell(3, row), e.TipCount)
		f.SetCellValue(leaderboardSheet, cell(4, row), hours)
		f.SetCellValue(leaderboardSheet, cell(5, row), joinBadges(e.Badges))
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	name := fmt.Sprintf("leaderboard_%s_%s.xlsx", board.Window, board.GeneratedAt.UTC().Format("20060102"))
	return buf, name, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func joinBadges(names []string) string {
	var b bytes.Buffer
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
	}
	return b.String()
}
