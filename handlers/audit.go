package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordAudit stores an admin action with the request's client details.
// The action has already been applied, so a failed write is only logged.
func RecordAudit(c *fiber.Ctx, db *gorm.DB, entry model.AdminAuditLog, oldValue, newValue interface{}) {
	entry.IPAddress = c.IP()
	entry.UserAgent = c.Get(fiber.HeaderUserAgent)
	entry.OldValue = marshalAuditValue(oldValue)
	entry.NewValue = marshalAuditValue(newValue)

	if err := db.WithContext(c.UserContext()).Create(&entry).Error; err != nil {
		log.Printf("[AUDIT] failed to record %s on %s/%d by admin %d: %v",
			entry.Action, entry.Resource, entry.ResourceID, entry.AdminID, err)
	}
}

func marshalAuditValue(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
