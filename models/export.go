package models

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportLedgersExcel renders both ledgers into a workbook with one sheet per
// ledger. The caller streams the file and sets the response headers.
func ExportLedgersExcel(ctx context.Context) (*excelize.File, error) {
	export, err := GetLedgerExport(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	inventorySheet := "Inventory"
	if err := f.SetSheetName("Sheet1", inventorySheet); err != nil {
		return nil, err
	}
	f.SetCellValue(inventorySheet, "A1", "RecordId")
	f.SetCellValue(inventorySheet, "B1", "ProductId")
	f.SetCellValue(inventorySheet, "C1", "ProductName")
	f.SetCellValue(inventorySheet, "D1", "Quantity")
	f.SetCellValue(inventorySheet, "E1", "UnitPrice")
	f.SetCellValue(inventorySheet, "F1", "CreatedAt")
	for i, rec := range export.ProductInventory {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(inventorySheet, "A"+row, rec.ID)
		f.SetCellValue(inventorySheet, "B"+row, rec.ProductId)
		f.SetCellValue(inventorySheet, "C"+row, rec.ProductName)
		f.SetCellValue(inventorySheet, "D"+row, rec.Quantity)
		f.SetCellValue(inventorySheet, "E"+row, rec.UnitPrice.String())
		f.SetCellValue(inventorySheet, "F"+row, rec.CreatedAt.UTC().Format(time.RFC3339))
	}

	dispatchSheet := "DistributorOrders"
	if _, err := f.NewSheet(dispatchSheet); err != nil {
		return nil, err
	}
	f.SetCellValue(dispatchSheet, "A1", "RecordId")
	f.SetCellValue(dispatchSheet, "B1", "DistributorId")
	f.SetCellValue(dispatchSheet, "C1", "DistributorName")
	f.SetCellValue(dispatchSheet, "D1", "ProductId")
	f.SetCellValue(dispatchSheet, "E1", "ProductName")
	f.SetCellValue(dispatchSheet, "F1", "Quantity")
	f.SetCellValue(dispatchSheet, "G1", "DispatchDate")
	for i, rec := range export.DistributorOrders {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(dispatchSheet, "A"+row, rec.ID)
		f.SetCellValue(dispatchSheet, "B"+row, rec.DistributorId)
		f.SetCellValue(dispatchSheet, "C"+row, rec.DistributorName)
		f.SetCellValue(dispatchSheet, "D"+row, rec.ProductId)
		f.SetCellValue(dispatchSheet, "E"+row, rec.ProductName)
		f.SetCellValue(dispatchSheet, "F"+row, rec.Quantity)
		f.SetCellValue(dispatchSheet, "G"+row, rec.DispatchDate.UTC().Format(time.RFC3339))
	}

	return f, nil
}
