package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Camera      CameraConfig
	Recognition RecognitionConfig
	Attendance  AttendanceConfig
	SMTP        SMTPConfig
	MQTT        MQTTConfig
	Web         WebConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	Driver        string // postgres, mariadb or memory (default postgres)
	URL           string // PostgreSQL connection URL or MariaDB DSN
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the matcher HNSW index (optional)
}

type CameraConfig struct {
	Backend        string        // gstreamer or synthetic (default gstreamer)
	DefaultIndex   int           // Device index used at startup (default 0)
	DevicePattern  string        // Device path pattern for the gstreamer backend (default /dev/video%d)
	Width          int           // Capture width (default 640)
	Height         int           // Capture height (default 480)
	OpenRetries    int           // Open attempts before reporting the camera unavailable (default 5)
	OpenRetryDelay time.Duration // Delay between open attempts (default 200ms)
	IdlePoll       time.Duration // Sleep while streaming is disabled (default 100ms)
	ReadRetry      time.Duration // Broadcaster sleep after a failed read (default 100ms)
	JPEGQuality    int           // Quality of emitted MJPEG frames (default 80)
}

type RecognitionConfig struct {
	Extractor            string  // http or dlib (default http)
	EmbeddingURL         string  // defaults to http://localhost:8000
	DlibModelsDir        string  // dlib model directory for the dlib extractor
	RecognitionThreshold float64 // Minimum cosine similarity for a live match (default 0.6)
	DedupThreshold       float64 // Minimum cosine similarity treated as the same face at enrollment (default 0.6)
	MinDetScore          float64 // Minimum detector confidence for enrollment (default 0.5)
	HNSWMinSize          int     // Gallery size above which the HNSW index is consulted (default 5000)
	FrameChangeBits      int     // Skip recognition when the frame hash moved fewer bits than this (default 0, off)
}

type AttendanceConfig struct {
	LateGrace        time.Duration // Allowed delay after shift start before an arrival counts as late (default 10m)
	ShiftCloseEvery  time.Duration // Interval of the shift-end checkout job (default 1m, 0 disables)
	Location         *time.Location
	NotifyOnArrival  bool // Send arrival/late emails from the outbox (default false)
	OutboxBufferSize int  // Pending notification events before dropping (default 64)
}

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int // defaults to 587
	Username string
	Password string
	Sender   string
	Admin    string // default recipient of daily summaries
	UseTLS   bool   // defaults to true
}

type MQTTConfig struct {
	Broker      string // e.g. tcp://localhost:1883; empty disables publishing
	ClientID    string // defaults to attendance-kiosk
	TopicPrefix string // defaults to attendance
}

type WebConfig struct {
	Host           string   // defaults to 0.0.0.0
	Port           int      // defaults to 5000
	AllowedOrigins []string // CORS origins besides localhost; "*" allows any
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
}

// Configured reports whether enough settings are present to open an SMTP session.
func (c *SMTPConfig) Configured() bool {
	return c.Enabled && c.Host != "" && c.Sender != ""
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go duration syntax ("250ms", "10m"). Negative values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envLocation loads an IANA time zone; "today" is computed in this zone.
func envLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:        envString("DATABASE_DRIVER", "postgres"),
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Camera: CameraConfig{
			Backend:        envString("CAMERA_BACKEND", "gstreamer"),
			DefaultIndex:   envInt("CAMERA_INDEX", 0),
			DevicePattern:  envString("CAMERA_DEVICE_PATTERN", "/dev/video%d"),
			Width:          envInt("CAMERA_WIDTH", 640),
			Height:         envInt("CAMERA_HEIGHT", 480),
			OpenRetries:    envInt("CAMERA_OPEN_RETRIES", 5),
			OpenRetryDelay: envDuration("CAMERA_OPEN_RETRY_DELAY", 200*time.Millisecond),
			IdlePoll:       envDuration("STREAM_IDLE_POLL", 100*time.Millisecond),
			ReadRetry:      envDuration("STREAM_READ_RETRY", 100*time.Millisecond),
			JPEGQuality:    envInt("STREAM_JPEG_QUALITY", 80),
		},
		Recognition: RecognitionConfig{
			Extractor:            envString("EXTRACTOR", "http"),
			EmbeddingURL:         os.Getenv("EMBEDDING_URL"),
			DlibModelsDir:        envString("DLIB_MODELS_DIR", "models"),
			RecognitionThreshold: envFloat("RECOGNITION_THRESHOLD", 0.6),
			DedupThreshold:       envFloat("DEDUP_THRESHOLD", 0.6),
			MinDetScore:          envFloat("MIN_DET_SCORE", 0.5),
			HNSWMinSize:          envInt("MATCHER_HNSW_MIN_SIZE", 5000),
			FrameChangeBits:      envInt("FRAME_CHANGE_BITS", 0),
		},
		Attendance: AttendanceConfig{
			LateGrace:        envDuration("LATE_GRACE", 10*time.Minute),
			ShiftCloseEvery:  envDuration("SHIFT_CLOSE_INTERVAL", time.Minute),
			Location:         envLocation("ATTENDANCE_TZ"),
			NotifyOnArrival:  envBool("NOTIFY_ON_ARRIVAL", false),
			OutboxBufferSize: envInt("NOTIFY_OUTBOX_SIZE", 64),
		},
		SMTP: SMTPConfig{
			Enabled:  envBool("EMAIL_NOTIFICATIONS_ENABLED", false),
			Host:     os.Getenv("SMTP_SERVER"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Sender:   os.Getenv("SMTP_SENDER_EMAIL"),
			Admin:    os.Getenv("SMTP_ADMIN_EMAIL"),
			UseTLS:   envBool("SMTP_USE_TLS", true),
		},
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			ClientID:    envString("MQTT_CLIENT_ID", "attendance-kiosk"),
			TopicPrefix: envString("MQTT_TOPIC_PREFIX", "attendance"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 5000),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}
