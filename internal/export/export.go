// Package export writes a session's learning outline as an xlsx workbook.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/learnpath/internal/wizard"
)

// Sheet names in the exported workbook.
const (
	SheetModules = "Modules"
	SheetContent = "Content"
)

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNothingToExport is returned before any modules have been generated.
var ErrNothingToExport = errors.New("no modules to export")

var moduleHeader = []any{"#", "Title", "Description", "Selected"}

// Outline writes st's modules, and the selected module's content when it is
// being viewed, to w.
func Outline(w io.Writer, st wizard.State) error {
	if len(st.Modules) == 0 {
		return ErrNothingToExport
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetModules); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeModules(f, st); err != nil {
		return err
	}

	if st.Step == wizard.StepContentView && st.SelectedModule != nil {
		if err := writeContent(f, st); err != nil {
			return err
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   st.Topic,
		Subject: st.GradeLevel,
		Creator: "learnpath",
	}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeModules(f *excelize.File, st wizard.State) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	title := fmt.Sprintf("%s (%s)", st.Topic, st.GradeLevel)
	if err := f.SetCellValue(SheetModules, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.SetSheetRow(SheetModules, "A3", &moduleHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetModules, "A1", "A1", bold); err != nil {
		return fmt.Errorf("style title: %w", err)
	}
	if err := f.SetCellStyle(SheetModules, "A3", "D3", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, m := range st.Modules {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		selected := ""
		if st.SelectedModule != nil && *st.SelectedModule == m {
			selected = "yes"
		}
		row := []any{i + 1, m.Title, m.Description, selected}
		if err := f.SetSheetRow(SheetModules, cell, &row); err != nil {
			return fmt.Errorf("write module %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetModules, "A", "A", 5); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	if err := f.SetColWidth(SheetModules, "B", "B", 32); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	if err := f.SetColWidth(SheetModules, "C", "C", 80); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	return nil
}

// writeContent puts one line of Markdown per row so the lesson stays readable
// in a spreadsheet.
func writeContent(f *excelize.File, st wizard.State) error {
	if _, err := f.NewSheet(SheetContent); err != nil {
		return fmt.Errorf("create content sheet: %w", err)
	}
	if err := f.SetCellValue(SheetContent, "A1", st.SelectedModule.Title); err != nil {
		return fmt.Errorf("write content title: %w", err)
	}

	lines := strings.Split(strings.ReplaceAll(st.Content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellStr(SheetContent, cell, line); err != nil {
			return fmt.Errorf("write content line %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(SheetContent, "A", "A", 120)
}
