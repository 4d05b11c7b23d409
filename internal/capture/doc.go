// Package capture abstracts the system-audio loopback source feeding the
// timeline recorder, and discovers ALSA capture devices including hotplug
// changes via udev.
package capture
