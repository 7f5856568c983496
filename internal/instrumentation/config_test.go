package instrumentation

import (
	"testing"
)

func clearInstrumentationEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OTEL_SERVICE_NAME",
		"INSTRUMENTATION_ENABLED",
		"METRICS_EXPORTER",
		"TRACING_EXPORTER",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_TRACES_SAMPLER_ARG",
		"PROMETHEUS_TEXTFILE",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearInstrumentationEnv(t)

	config := DefaultConfig()

	if config.ServiceName != "gmailcli" {
		t.Errorf("expected ServiceName 'gmailcli', got %q", config.ServiceName)
	}

	if config.Enabled {
		t.Error("expected Enabled to be false by default")
	}

	if config.MetricsExporter != ExporterNone {
		t.Errorf("expected MetricsExporter 'none', got %q", config.MetricsExporter)
	}

	if config.TracingExporter != ExporterNone {
		t.Errorf("expected TracingExporter 'none', got %q", config.TracingExporter)
	}

	if config.TraceSamplingRate != 1.0 {
		t.Errorf("expected TraceSamplingRate 1.0, got %f", config.TraceSamplingRate)
	}
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	clearInstrumentationEnv(t)
	t.Setenv("OTEL_SERVICE_NAME", "test-service")
	t.Setenv("INSTRUMENTATION_ENABLED", "true")
	t.Setenv("METRICS_EXPORTER", "prometheus")
	t.Setenv("TRACING_EXPORTER", "stdout")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("PROMETHEUS_TEXTFILE", "/var/lib/node_exporter/gmailcli.prom")

	config := DefaultConfig()

	if config.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %q", config.ServiceName)
	}
	if !config.Enabled {
		t.Error("expected Enabled to be true")
	}
	if config.MetricsExporter != ExporterPrometheus {
		t.Errorf("expected MetricsExporter 'prometheus', got %q", config.MetricsExporter)
	}
	if config.TracingExporter != ExporterStdout {
		t.Errorf("expected TracingExporter 'stdout', got %q", config.TracingExporter)
	}
	if config.TraceSamplingRate != 0.5 {
		t.Errorf("expected TraceSamplingRate 0.5, got %f", config.TraceSamplingRate)
	}
	if config.PrometheusTextfile != "/var/lib/node_exporter/gmailcli.prom" {
		t.Errorf("unexpected PrometheusTextfile %q", config.PrometheusTextfile)
	}
}

func TestDefaultConfig_InvalidValuesFallBack(t *testing.T) {
	clearInstrumentationEnv(t)
	t.Setenv("INSTRUMENTATION_ENABLED", "not-a-bool")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "lots")

	config := DefaultConfig()

	if config.Enabled {
		t.Error("expected invalid bool to fall back to false")
	}
	if config.TraceSamplingRate != 1.0 {
		t.Errorf("expected invalid float to fall back to 1.0, got %f", config.TraceSamplingRate)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "defaults",
			config: Config{MetricsExporter: ExporterNone, TracingExporter: ExporterNone, TraceSamplingRate: 1.0},
		},
		{
			name:    "sampling rate too high",
			config:  Config{TraceSamplingRate: 1.5},
			wantErr: true,
		},
		{
			name:    "sampling rate negative",
			config:  Config{TraceSamplingRate: -0.1},
			wantErr: true,
		},
		{
			name:    "unknown metrics exporter",
			config:  Config{MetricsExporter: "statsd", TraceSamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:    "prometheus is not a tracing exporter",
			config:  Config{TracingExporter: ExporterPrometheus, TraceSamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:    "otlp tracing without endpoint",
			config:  Config{TracingExporter: ExporterOTLP, TraceSamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:    "otlp metrics without endpoint",
			config:  Config{MetricsExporter: ExporterOTLP, TraceSamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:   "otlp with endpoint",
			config: Config{MetricsExporter: ExporterOTLP, TracingExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318", TraceSamplingRate: 1.0},
		},
		{
			name:    "prometheus without textfile",
			config:  Config{MetricsExporter: ExporterPrometheus, TraceSamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:   "prometheus with textfile",
			config: Config{MetricsExporter: ExporterPrometheus, PrometheusTextfile: "/tmp/gmailcli.prom", TraceSamplingRate: 1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
