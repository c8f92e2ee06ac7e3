package controllers

import (
	"sync"

	"gorm.io/gorm"

	"github.com/pwr-labs/pwr-access/internal/pkg/billing"
	"github.com/pwr-labs/pwr-access/internal/pkg/database"
)

var (
	billingOnce sync.Once
	billingCfg  *billing.Config
	billingSvc  *billing.Service
	billingErr  error
)

// InitBilling materializes the billing configuration once and wires the
// service shared by all billing handlers. Called from main so a broken
// configuration fails the process at startup instead of on the first
// request.
func InitBilling(db *gorm.DB) error {
	billingOnce.Do(func() {
		billingCfg, billingErr = billing.NewConfigFromEnv()
		if billingErr != nil {
			return
		}
		billingSvc = billing.NewServiceFromDB(billingCfg, db)
	})
	return billingErr
}

func billingConfig() (*billing.Config, error) {
	if err := InitBilling(database.GetDB()); err != nil {
		return nil, err
	}
	return billingCfg, nil
}

func billingService() (*billing.Service, error) {
	if err := InitBilling(database.GetDB()); err != nil {
		return nil, err
	}
	return billingSvc, nil
}
