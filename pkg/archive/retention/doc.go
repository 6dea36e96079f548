// Package retention prunes the log archive by age and size, either on
// demand or on a cron schedule (github.com/robfig/cron/v3, standard five
// field syntax).
package retention
