package controllers

import (
	"fmt"
	"net/http"

	"flowkeeper/internal/models"
	"flowkeeper/internal/registry"

	"github.com/gin-gonic/gin"
	"github.com/iancoleman/orderedmap"
)

type DeviceController struct {
	reg *registry.Registry
}

/**
 * Create new device controller instance
 * @param {*registry.Registry} reg - Registry of the running orchestrator
 * @returns {*DeviceController} New device controller instance
 */
func NewDeviceController(reg *registry.Registry) *DeviceController {
	return &DeviceController{
		reg: reg,
	}
}

func (d *DeviceController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/flowkeeper/api/v1")
	api.GET("/devices", d.ListDevices)
	api.GET("/devices/:id", d.GetDevice)
	api.GET("/devices/:id/metrics", d.GetMetrics)
}

// ListDevices lists every device of the run
//
//	@Summary		List devices
//	@Description	Get the reported state of every device, without output history
//	@Tags			Devices
//	@Produce		json
//	@Success		200	{array}	models.DeviceDetail	"List of devices"
//	@Router			/flowkeeper/api/v1/devices [get]
func (d *DeviceController) ListDevices(c *gin.Context) {
	c.JSON(http.StatusOK, d.reg.Snapshot())
}

// GetDevice returns one device including its output history
//
//	@Summary		Get device
//	@Tags			Devices
//	@Produce		json
//	@Param			id	path		string				true	"Device ID"
//	@Success		200	{object}	models.DeviceDetail
//	@Failure		404	{object}	models.ErrorResponse	"Device not found error response"
//	@Router			/flowkeeper/api/v1/devices/{id} [get]
func (d *DeviceController) GetDevice(c *gin.Context) {
	i, ok := d.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.reg.Device(i).Detail(true))
}

// GetMetrics returns the metric series of one device, keys in the order they were first reported
//
//	@Summary		Get device metrics
//	@Tags			Devices
//	@Produce		json
//	@Param			id	path		string	true	"Device ID"
//	@Success		200	{object}	map[string][]models.MetricSample
//	@Failure		404	{object}	models.ErrorResponse	"Device not found error response"
//	@Router			/flowkeeper/api/v1/devices/{id}/metrics [get]
func (d *DeviceController) GetMetrics(c *gin.Context) {
	i, ok := d.lookup(c)
	if !ok {
		return
	}
	metrics := d.reg.Metrics(i)
	result := orderedmap.New()
	for _, key := range metrics.Keys() {
		result.Set(key, metrics.Series(key))
	}
	c.JSON(http.StatusOK, result)
}

func (d *DeviceController) lookup(c *gin.Context) (int, bool) {
	id := c.Param("id")
	i, ok := d.reg.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, &models.ErrorResponse{
			Code:  "device.notexist",
			Error: fmt.Sprintf("device [%s] isn't exist", id),
		})
	}
	return i, ok
}
