package balance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// trigger is the single recurring job that runs the engine once a day.
type trigger struct {
	runner *cron.Cron
}

func cronSpec(triggerTime string) (string, error) {
	if triggerTime == "" {
		triggerTime = "05:30"
	}
	ts, err := time.Parse("15:04", triggerTime)
	if err != nil {
		return "", fmt.Errorf("invalid trigger time '%s'", triggerTime)
	}
	return fmt.Sprintf("%d %d * * *", ts.Minute(), ts.Hour()), nil
}

func (c *Controller) Start() {
	spec, err := cronSpec(c.config.TriggerTime)
	if err != nil {
		c.c.LogError("balance", err.Error())
		return
	}
	runner := cron.New()
	if _, err := runner.AddFunc(spec, func() {
		now := time.Now()
		if _, err := c.Evaluate(now, now); err != nil {
			c.c.LogError("balance", "daily evaluation failed: "+err.Error())
		}
	}); err != nil {
		c.c.LogError("balance", "failed to schedule daily trigger: "+err.Error())
		return
	}
	runner.Start()
	c.trigger = &trigger{runner: runner}
}

func (c *Controller) Stop() {
	if c.trigger != nil {
		c.trigger.runner.Stop()
		c.trigger = nil
	}
}
