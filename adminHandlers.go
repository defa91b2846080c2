package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
	"github.com/shopspring/decimal"
)

// respondError maps domain errors onto HTTP statuses in one place so every
// handler reports the same way.
func respondError(c *gin.Context, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrProductNotInStock),
		errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, utils.ErrNoOrdersFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrInsufficientStock),
		errors.Is(err, utils.ErrInvalidDateRange),
		errors.Is(err, utils.ErrPriceNotResolvable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// coerceInt accepts JSON numbers and numeric strings; clients send both.
func coerceInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		parsed, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	default:
		return decimal.Zero, false
	}
}

// parseDate accepts RFC3339 timestamps or plain yyyy-mm-dd dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func createInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		productId, ok := coerceInt(body["productId"])
		if !ok || productId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
			return
		}
		productName, _ := body["productName"].(string)
		if productName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productName is required"})
			return
		}
		quantity, ok := coerceInt(body["quantity"])
		if !ok || quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a positive number"})
			return
		}
		unitPrice := decimal.Zero
		if raw, present := body["unitPrice"]; present {
			parsed, ok := coerceDecimal(raw)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unitPrice must be a number"})
				return
			}
			unitPrice = parsed
		}

		record, err := models.CreateInventoryRecord(c.Request.Context(), &models.NewInventoryRecord{
			ProductId:   productId,
			ProductName: productName,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func placeDistributorOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDistributorOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "inventory.placeDistributorOrder")
		defer span.End()

		record, err := models.PlaceDistributorOrder(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func availableQuantityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("productId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId must be a number"})
			return
		}

		quantity, err := models.AvailableQuantity(c.Request.Context(), productId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"productId": productId, "availableQuantity": quantity})
	}
}

func currentUnitPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("productId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId must be a number"})
			return
		}

		price, err := models.CurrentUnitPrice(c.Request.Context(), productId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"productId": productId, "unitPrice": price})
	}
}

type dispatchRangeRequest struct {
	DistributorId int    `json:"distributorId" binding:"required"`
	ProductId     int    `json:"productId"`
	StartDate     string `json:"startDate" binding:"required"`
	EndDate       string `json:"endDate" binding:"required"`
}

func dispatchedValuationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispatchRangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		if req.ProductId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate is not a valid date"})
			return
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate is not a valid date"})
			return
		}

		valuation, err := models.DispatchedValuation(c.Request.Context(), req.DistributorId, req.ProductId, start, end)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, valuation)
	}
}

func distributorTotalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispatchRangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate is not a valid date"})
			return
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate is not a valid date"})
			return
		}

		valuation, err := models.TotalValueForDistributor(c.Request.Context(), req.DistributorId, start, end)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, valuation)
	}
}

func ledgerExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		export, err := models.GetLedgerExport(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, export)
	}
}

func ledgerExportExcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := models.ExportLedgersExcel(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=ledgers-%s.xlsx", time.Now().UTC().Format("2006-01-02")))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "adminHandlers.go", "ledgerExportExcelHandler", "write workbook", nil, err)
		}
	}
}

func createCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		category, err := models.CreateCategory(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, category)
	}
}

func listCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		withProducts := c.Query("withProducts") == "true"
		categories, err := models.GetAllCategories(c.Request.Context(), withProducts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, categories)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func addProductVariantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be a number"})
			return
		}
		var input []models.NewProductVariant
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.AddVariantsToProduct(c.Request.Context(), productId, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func listProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := models.GetAllProducts(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be a number"})
			return
		}
		product, err := models.GetProduct(c.Request.Context(), productId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func editProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be a number"})
			return
		}
		var input models.UpdateProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.EditProduct(c.Request.Context(), productId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func deleteProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be a number"})
			return
		}
		if err := models.DeleteProduct(c.Request.Context(), productId); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": productId})
	}
}

func listAllOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := models.GetAllOrders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func listDistributorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		distributors, err := models.GetAllDistributors(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, distributors)
	}
}

func editDistributorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		distributorId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "distributor id must be a number"})
			return
		}
		var input models.UpdateDistributor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		distributor, err := models.EditDistributor(c.Request.Context(), distributorId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, distributor)
	}
}

func deleteDistributorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		distributorId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "distributor id must be a number"})
			return
		}
		if err := models.DeleteDistributor(c.Request.Context(), distributorId); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": distributorId})
	}
}

func listSalespersonsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		salespersons, err := models.GetAllSalespersons(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, salespersons)
	}
}

func listShopsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shops, err := models.GetShops(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shops)
	}
}

type notificationReplayRequest struct {
	JobId int `json:"job_id" binding:"required"`
}

func notificationReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
			return
		}
		job, err := models.RequeueNotificationJob(c.Request.Context(), req.JobId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id":   job.ID,
			"order_id": job.OrderId,
			"status":   job.Status,
		})
	}
}

func deadNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := models.GetDeadNotificationJobs(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}
