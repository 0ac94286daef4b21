package allocation

// Config defines allocation-related settings.
type Config struct {
	// DeliveryLeadHours is the fixed offset used for the estimated
	// delivery timestamp of new dispatches.
	DeliveryLeadHours int `json:"delivery_lead_hours"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DeliveryLeadHours <= 0 {
		c.DeliveryLeadHours = 72
	}
}
