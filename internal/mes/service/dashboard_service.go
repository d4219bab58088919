package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/xuri/excelize/v2"
)

var runExportHeaders = []string{
	"订单编码", "运行状态", "健康度", "阻塞", "必做跳过", "停滞工步",
	"工步进度", "批次进度",
}

// DashboardService 看板服务
type DashboardService struct {
	health *HealthService
}

func NewDashboardService(health *HealthService) *DashboardService {
	return &DashboardService{health: health}
}

// GetSummary 看板汇总
func (s *DashboardService) GetSummary(ctx context.Context, actor Actor) (*HealthSummary, error) {
	return s.health.Summarize(ctx, actor)
}

// ExportRunsXlsx 导出运行看板为xlsx
func (s *DashboardService) ExportRunsXlsx(ctx context.Context, actor Actor) (*excelize.File, string, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceDashboard, auth.ActionRead); err != nil {
		return nil, "", err
	}

	summary, err := s.health.buildSummary(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("build summary: %w", err)
	}

	f := excelize.NewFile()
	sheet := "生产运行"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range runExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	yesNo := func(b bool) string {
		if b {
			return "是"
		}
		return "否"
	}

	for rowIdx, h := range summary.Runs {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), h.OrderCode)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), h.RunStatus)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), h.Health)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), yesNo(h.Blocked))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), yesNo(h.HasRequiredSkips))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), yesNo(h.HasStalledStep))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), fmt.Sprintf("%d/%d", h.StepsDone, h.StepsTotal))
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), fmt.Sprintf("%d/%d", h.BatchesCompleted, h.BatchesTotal))
	}

	summaryRow := len(summary.Runs) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow),
		fmt.Sprintf("活跃 %d / 告警 %d / 阻塞 %d", summary.ActiveRuns, summary.RunsAttention, summary.RunsBlocked))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("H%d", summaryRow), summaryStyle)

	colWidths := []float64{16, 14, 10, 8, 10, 10, 12, 12}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	fileName := fmt.Sprintf("生产运行看板-%s.xlsx", time.Now().Format("20060102"))
	return f, fileName, nil
}
