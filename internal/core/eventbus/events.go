package eventbus

import "github.com/kestreldev/kestrel/internal/core/entity"

// Event names a bus event type.
type Event string

// All bus events.
const (
	// Keep list sorted A-Z
	EventAuthExpired           Event = "auth.expired"
	EventConfigReloaded        Event = "config.reloaded"
	EventEntityInvalidated     Event = "entity.invalidated"
	EventEntityUpdated         Event = "entity.updated"
	EventJobStatusChanged      Event = "job.status-changed"
	EventNotificationPublished Event = "notification.published"
)

// Level classifies a user-facing notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-visible message rendered as a toast.
type Notification struct {
	Level   Level
	Message string
}

// EntityUpdatedPayload is emitted after the store applies a put.
type EntityUpdatedPayload struct {
	Kind   entity.Kind
	GID    string
	Parent string
}

// EntityInvalidatedPayload is emitted after the store removes or
// stales an entry.
type EntityInvalidatedPayload struct {
	Kind   entity.Kind
	GID    string
	Parent string
}

// JobStatusChangedPayload is emitted on every sync job state change.
// State and Class are plain strings so consumers do not depend on the
// scheduler package.
type JobStatusChangedPayload struct {
	JobID    uint64
	Kind     entity.Kind
	TargetID string
	State    string
	Err      error
	Class    string
}

// AuthExpiredPayload is emitted when the remote API rejects the
// session token. Background refresh scheduling suspends until
// credentials are replaced.
type AuthExpiredPayload struct{}

// ConfigReloadedPayload is emitted when the config file changes on disk.
type ConfigReloadedPayload struct{}

// NotificationPublishedPayload carries a user-facing notification.
type NotificationPublishedPayload struct {
	Notification Notification
}

// PublishEntityUpdated enqueues an entity.updated event.
func (bus *EventBus) PublishEntityUpdated(p EntityUpdatedPayload) {
	bus.send(EventEntityUpdated, p)
}

// SubscribeEntityUpdated registers a handler for entity.updated events.
func (bus *EventBus) SubscribeEntityUpdated(fn func(EntityUpdatedPayload)) {
	subscribe(bus, EventEntityUpdated, fn)
}

// PublishEntityInvalidated enqueues an entity.invalidated event.
func (bus *EventBus) PublishEntityInvalidated(p EntityInvalidatedPayload) {
	bus.send(EventEntityInvalidated, p)
}

// SubscribeEntityInvalidated registers a handler for entity.invalidated events.
func (bus *EventBus) SubscribeEntityInvalidated(fn func(EntityInvalidatedPayload)) {
	subscribe(bus, EventEntityInvalidated, fn)
}

// PublishJobStatusChanged enqueues a job.status-changed event.
func (bus *EventBus) PublishJobStatusChanged(p JobStatusChangedPayload) {
	bus.send(EventJobStatusChanged, p)
}

// SubscribeJobStatusChanged registers a handler for job.status-changed events.
func (bus *EventBus) SubscribeJobStatusChanged(fn func(JobStatusChangedPayload)) {
	subscribe(bus, EventJobStatusChanged, fn)
}

// PublishAuthExpired enqueues an auth.expired event.
func (bus *EventBus) PublishAuthExpired(p AuthExpiredPayload) {
	bus.send(EventAuthExpired, p)
}

// SubscribeAuthExpired registers a handler for auth.expired events.
func (bus *EventBus) SubscribeAuthExpired(fn func(AuthExpiredPayload)) {
	subscribe(bus, EventAuthExpired, fn)
}

// PublishConfigReloaded enqueues a config.reloaded event.
func (bus *EventBus) PublishConfigReloaded(p ConfigReloadedPayload) {
	bus.send(EventConfigReloaded, p)
}

// SubscribeConfigReloaded registers a handler for config.reloaded events.
func (bus *EventBus) SubscribeConfigReloaded(fn func(ConfigReloadedPayload)) {
	subscribe(bus, EventConfigReloaded, fn)
}

// PublishNotificationPublished enqueues a notification.published event.
func (bus *EventBus) PublishNotificationPublished(p NotificationPublishedPayload) {
	bus.send(EventNotificationPublished, p)
}

// SubscribeNotificationPublished registers a handler for notification.published events.
func (bus *EventBus) SubscribeNotificationPublished(fn func(NotificationPublishedPayload)) {
	subscribe(bus, EventNotificationPublished, fn)
}

// Notify publishes a user-facing notification at the given level.
func (bus *EventBus) Notify(level Level, message string) {
	bus.PublishNotificationPublished(NotificationPublishedPayload{
		Notification: Notification{Level: level, Message: message},
	})
}
