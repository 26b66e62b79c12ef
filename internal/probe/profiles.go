// Package probe turns the JSON state of a Shelly device into a metric
// collection. Field extraction is dispatched over a closed set of device
// profiles selected by the device's reported type; unknown types degrade to
// the generic base extraction instead of failing.
package probe

import (
	"context"
	"strconv"

	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
	"github.com/dmaes/prometheus-shelly-exporter/internal/shelly"
)

// profile extracts the device-family specific series on top of the base
// extraction. Implementations must either add every series of their family
// or fail; partially populated collections are never returned.
type profile interface {
	collect(ctx context.Context, client *shelly.Client, status shelly.Document, col *metrics.Collection) error
}

// profileFor maps a reported device type to its extraction profile. New
// device families are supported by adding a case here and a profile type
// below.
func profileFor(deviceType string) profile {
	switch deviceType {
	case "SHPLG-S":
		return plugProfile{ledAndTemperature: true}
	case "SHPLG-1":
		return plugProfile{}
	case "SHTRV-01":
		return trvProfile{}
	case "SHHT-1":
		return htProfile{}
	default:
		return baseOnlyProfile{}
	}
}

// baseOnlyProfile is the fallback for unrecognized hardware: the base
// extraction already ran, nothing more to add.
type baseOnlyProfile struct{}

func (baseOnlyProfile) collect(context.Context, *shelly.Client, shelly.Document, *metrics.Collection) error {
	return nil
}

// collectBase populates the generic series every Shelly reports, independent
// of device family.
func collectBase(status shelly.Document, col *metrics.Collection) error {
	wifiConnected, err := status.Bool("wifi_sta", "connected")
	if err != nil {
		return err
	}
	col.AddBool("wifi_sta_connected", wifiConnected, nil,
		"Current status of the WiFi connection (connected or not)")

	cloudEnabled, err := status.Bool("cloud", "enabled")
	if err != nil {
		return err
	}
	col.AddBool("cloud_enabled", cloudEnabled, nil,
		"Current cloud connection status (enabled or not)")

	cloudConnected, err := status.Bool("cloud", "connected")
	if err != nil {
		return err
	}
	col.AddBool("cloud_connected", cloudConnected, nil,
		"Current cloud connection status (connected or not)")

	mqttConnected, err := status.Bool("mqtt", "connected")
	if err != nil {
		return err
	}
	col.AddBool("mqtt_connected", mqttConnected, nil,
		"MQTT connection status, when MQTT is enabled (connected or not)")

	serial, err := status.Float("serial")
	if err != nil {
		return err
	}
	col.AddGauge("serial", serial, nil, "Cloud serial number")

	hasUpdate, err := status.Bool("update", "has_update")
	if err != nil {
		return err
	}
	col.AddBool("has_update", hasUpdate, nil, "Whether an update is available")

	ramTotal, err := status.Float("ram_total")
	if err != nil {
		return err
	}
	col.AddGauge("ram_total", ramTotal, nil, "Total amount of system memory in bytes")

	ramFree, err := status.Float("ram_free")
	if err != nil {
		return err
	}
	col.AddGauge("ram_free", ramFree, nil, "Available amount of system memory in bytes")

	fsSize, err := status.Float("fs_size")
	if err != nil {
		return err
	}
	col.AddGauge("fs_size", fsSize, nil, "Total amount of the file system in bytes")

	fsFree, err := status.Float("fs_free")
	if err != nil {
		return err
	}
	col.AddGauge("fs_free", fsFree, nil, "Available amount of the file system in bytes")

	uptime, err := status.Float("uptime")
	if err != nil {
		return err
	}
	col.AddCounter("uptime", uptime, nil, "Seconds elapsed since boot")

	return nil
}

// plugProfile covers the metered relay/plug family. ledAndTemperature is set
// for the PlugS, the one sub-model with LED indication settings and an
// internal temperature sensor.
type plugProfile struct {
	ledAndTemperature bool
}

func (p plugProfile) collect(ctx context.Context, client *shelly.Client, status shelly.Document, col *metrics.Collection) error {
	settings, err := client.Get(ctx, "/settings")
	if err != nil {
		return err
	}

	maxPower, err := settings.Float("max_power")
	if err != nil {
		return err
	}
	col.AddGauge("max_power", maxPower, nil, "Overpower threshold in Watts")

	if p.ledAndTemperature {
		ledStatusDisable, err := settings.Bool("led_status_disable")
		if err != nil {
			return err
		}
		col.AddBool("led_status_disable", ledStatusDisable, nil,
			"Whether LED indication for connection status is enabled")

		ledPowerDisable, err := settings.Bool("led_power_disable")
		if err != nil {
			return err
		}
		col.AddBool("led_power_disable", ledPowerDisable, nil,
			"Whether LED indication for output status is enabled")

		temperature, err := status.Float("temperature")
		if err != nil {
			return err
		}
		col.AddGauge("temperature", temperature, nil, "internal device temperature in °C")

		overtemperature, err := status.Bool("overtemperature")
		if err != nil {
			return err
		}
		col.AddBool("overtemperature", overtemperature, nil, "true when device has overheated")
	}

	relays, err := status.Objects("relays")
	if err != nil {
		return err
	}
	for i, relay := range relays {
		labels := map[string]string{"relay": strconv.Itoa(i)}

		ison, err := relay.Bool("ison")
		if err != nil {
			return err
		}
		col.AddBool("relay_ison", ison, labels, "Whether the channel is turned ON or OFF")

		hasTimer, err := relay.Bool("has_timer")
		if err != nil {
			return err
		}
		col.AddBool("relay_has_timer", hasTimer, labels,
			"Whether a timer is currently armed for this channel")

		// Timer details only make sense while a timer is armed; zero-valued
		// series for idle channels would be misleading.
		if hasTimer {
			timerStarted, err := relay.Float("timer_started")
			if err != nil {
				return err
			}
			col.AddGauge("relay_timer_started", timerStarted, labels,
				"Unix timestamp of timer start; 0 if timer inactive or time not synced")

			timerDuration, err := relay.Float("timer_duration")
			if err != nil {
				return err
			}
			col.AddGauge("relay_timer_duration", timerDuration, labels, "Timer duration, s")

			timerRemaining, err := relay.Float("timer_remaining")
			if err != nil {
				return err
			}
			col.AddGauge("relay_timer_remaining", timerRemaining, labels,
				"If there is an active timer, shows seconds until timer elapses; 0 otherwise")
		}

		overpower, err := relay.Bool("overpower")
		if err != nil {
			return err
		}
		col.AddBool("relay_overpower", overpower, labels, "")
	}

	meters, err := status.Objects("meters")
	if err != nil {
		return err
	}
	for i, meter := range meters {
		labels := map[string]string{"meter": strconv.Itoa(i)}

		power, err := meter.Float("power")
		if err != nil {
			return err
		}
		col.AddGauge("meter_power", power, labels,
			"Current real AC power being drawn, in Watts")

		isValid, err := meter.Bool("is_valid")
		if err != nil {
			return err
		}
		col.AddBool("meter_is_valid", isValid, labels, "Whether power metering self-checks OK")

		total, err := meter.Float("total")
		if err != nil {
			return err
		}
		col.AddGauge("meter_total", total, labels,
			"Total energy consumed by the attached electrical appliance in Watt-minute")
	}

	return nil
}

// trvProfile covers the thermostatic radiator valve.
type trvProfile struct{}

func (trvProfile) collect(_ context.Context, _ *shelly.Client, status shelly.Document, col *metrics.Collection) error {
	if err := collectBattery(status, col); err != nil {
		return err
	}

	charger, err := status.Bool("charger")
	if err != nil {
		return err
	}
	col.AddBool("bat_charger", charger, nil,
		"Boolean to show whether a charger is plugged in")

	thermostats, err := status.Objects("thermostats")
	if err != nil {
		return err
	}
	for i, thermostat := range thermostats {
		labels := map[string]string{"thermostats": strconv.Itoa(i)}

		pos, err := thermostat.Float("pos")
		if err != nil {
			return err
		}
		col.AddGauge("pos", pos, labels, "Position of thermostat pin")

		enabled, err := thermostat.Bool("target_t", "enabled")
		if err != nil {
			return err
		}
		col.AddBool("thermostat_enabled", enabled, labels, "Whether the thermostat is enabled")

		targetT, err := thermostat.Float("target_t", "value")
		if err != nil {
			return err
		}
		col.AddGauge("thermostat_target_t", targetT, labels, "Thermostat target temperature")

		measured, err := thermostat.Float("tmp", "value")
		if err != nil {
			return err
		}
		col.AddGauge("thermostat_measured_temperature", measured, labels,
			"Thermostat measured temperature")

		measuredValid, err := thermostat.Bool("tmp", "is_valid")
		if err != nil {
			return err
		}
		col.AddBool("thermostat_measured_valid", measuredValid, labels,
			"Whether the temperature measurement is valid")

		scheduled, err := thermostat.Bool("schedule")
		if err != nil {
			return err
		}
		col.AddBool("thermostat_is_scheduled", scheduled, labels,
			"Whether the thermostat is following a schedule")

		scheduleProfile, err := thermostat.Float("schedule_profile")
		if err != nil {
			return err
		}
		col.AddGauge("thermostat_schedule_profile", scheduleProfile, labels,
			"Current thermostat profile")

		boostMinutes, err := thermostat.Float("boost_minutes")
		if err != nil {
			return err
		}
		col.AddGauge("thermostat_boost_minutes", boostMinutes, labels,
			"Length of initial warm-up boost, in minutes")
	}

	return nil
}

// htProfile covers the humidity/temperature sensor.
type htProfile struct{}

func (htProfile) collect(_ context.Context, _ *shelly.Client, status shelly.Document, col *metrics.Collection) error {
	if err := collectBattery(status, col); err != nil {
		return err
	}

	humidity, err := status.Float("hum", "value")
	if err != nil {
		return err
	}
	col.AddGauge("humidity", humidity, nil, "Air humidity, in %rH")

	humidityValid, err := status.Bool("hum", "is_valid")
	if err != nil {
		return err
	}
	col.AddBool("humidity_valid", humidityValid, nil,
		"Whether the humidity measurement is valid")

	temperature, err := status.Float("tmp", "value")
	if err != nil {
		return err
	}
	col.AddGauge("temperature", temperature, nil, "Air temperature")

	temperatureValid, err := status.Bool("tmp", "is_valid")
	if err != nil {
		return err
	}
	col.AddBool("temperature_valid", temperatureValid, nil,
		"Whether the temperature measurement is valid")

	return nil
}

// collectBattery adds the charge/voltage pair shared by the battery-powered
// families.
func collectBattery(status shelly.Document, col *metrics.Collection) error {
	charge, err := status.Float("bat", "value")
	if err != nil {
		return err
	}
	col.AddGauge("bat_charge", charge, nil, "Percentage of battery level")

	voltage, err := status.Float("bat", "voltage")
	if err != nil {
		return err
	}
	col.AddGauge("bat_voltage", voltage, nil, "Battery voltage")

	return nil
}
