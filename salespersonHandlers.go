package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
)

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "order.create")
		defer span.End()

		order, err := models.CreateOrder(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		// The mail job settles on its own schedule; the response is the order
		// alone, with no notification state.
		c.JSON(http.StatusCreated, order)
	}
}

func updateOrderItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order id must be a number"})
			return
		}
		var input models.UpdateOrderItemsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		order, err := models.UpdateOrderItems(c.Request.Context(), orderId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func salespersonOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		salespersonId, err := strconv.Atoi(c.Param("salespersonId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "salesperson id must be a number"})
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), salespersonId)
		orders, err := models.GetSalespersonOrders(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func salespersonShopsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		salespersonId, err := strconv.Atoi(c.Param("salespersonId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "salesperson id must be a number"})
			return
		}

		shops, err := models.GetShopkeepersBySalesperson(c.Request.Context(), salespersonId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shops)
	}
}

func createShopkeeperHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewShopkeeper
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		shopkeeper, err := models.CreateShopkeeper(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, shopkeeper)
	}
}
