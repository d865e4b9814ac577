package metric

// Kind is the declared value type of a metric
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindBool    Kind = "bool"
	KindText    Kind = "text"
)

// Well-known metric keys produced by the source adapters
const (
	KeyCelsiusDegree  = "celsius_degree"
	KeyHumidity       = "humidity"
	KeyLightIntensity = "light_intensity"
	KeyMotionDetected = "motion_detected"
	KeyDust           = "dust"
	KeyMagApproach    = "mag_approach"
	KeyDoorStatus     = "door_status"
	KeyWindowStatus   = "window_status"
	KeyTouch          = "touch"
	KeyPM1            = "pm1_0_atm"
	KeyPM25           = "pm2_5_atm"
	KeyPM10           = "pm10_atm"
)

// kindOverrides lists every key that is not numeric
var kindOverrides = map[string]Kind{
	KeyDoorStatus:     KindText,
	KeyWindowStatus:   KindText,
	KeyMotionDetected: KindBool,
	KeyMagApproach:    KindBool,
	KeyTouch:          KindBool,
}

// Classify returns the declared kind for a metric key.
// Keys missing from the override table are numeric.
func Classify(key string) Kind {
	if kind, ok := kindOverrides[key]; ok {
		return kind
	}
	return KindNumeric
}

// Valid reports whether k is one of the three storable kinds
func (k Kind) Valid() bool {
	switch k {
	case KindNumeric, KindBool, KindText:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
