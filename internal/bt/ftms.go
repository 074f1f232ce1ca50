package bt

import "fmt"

// Bluetooth service and characteristic UUIDs used by the link.
const (
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"

	ServiceUUIDFTMS             = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDIndoorBikeData      = "00002ad2-0000-1000-8000-00805f9b34fb"
	CharUUIDFTMSControlPoint    = "00002ad9-0000-1000-8000-00805f9b34fb"
	CharUUIDSupportedPowerRange = "00002ad8-0000-1000-8000-00805f9b34fb"
)

// FTMS Control Point op codes (FTMS 1.0).
const (
	ftmsOpRequestControl      byte = 0x00
	ftmsOpReset               byte = 0x01
	ftmsOpSetTargetResistance byte = 0x04
	ftmsOpSetTargetPower      byte = 0x05
	ftmsOpStartOrResume       byte = 0x07
	ftmsOpStopOrPause         byte = 0x08
	ftmsOpResponseCode        byte = 0x80
)

// FTMS Control Point result codes.
const (
	ftmsResultSuccess             byte = 0x01
	ftmsResultOpCodeNotSupported  byte = 0x02
	ftmsResultInvalidParameter    byte = 0x03
	ftmsResultOperationFailed     byte = 0x04
	ftmsResultControlNotPermitted byte = 0x05
)

// Indoor Bike Data flag bits (little-endian UINT16 at the head of the
// characteristic). Bit 0 is inverted: 0 means instantaneous speed present.
const (
	ibdFlagMoreData             = 1 << 0
	ibdFlagAverageSpeed         = 1 << 1
	ibdFlagInstantaneousCadence = 1 << 2
	ibdFlagAverageCadence       = 1 << 3
	ibdFlagTotalDistance        = 1 << 4
	ibdFlagResistanceLevel      = 1 << 5
	ibdFlagInstantaneousPower   = 1 << 6
	ibdFlagAveragePower         = 1 << 7
	ibdFlagExpendedEnergy       = 1 << 8
	ibdFlagHeartRate            = 1 << 9
)

// BikeData holds the Indoor Bike Data fields the engine consumes. Fields the
// trainer did not include in a given notification stay nil.
type BikeData struct {
	SpeedKmh   *float64
	CadenceRpm *float64
	PowerWatts *float64
	HeartRate  *float64
}

func readUint16(buf []byte, offset int) uint16 {
	return uint16(buf[offset]) | uint16(buf[offset+1])<<8
}

// parseIndoorBikeData decodes the FTMS Indoor Bike Data characteristic.
// Fields are laid out in flag-bit order, so every present field before the
// ones we want has to be walked over even when it is discarded.
func parseIndoorBikeData(buf []byte) (BikeData, error) {
	var data BikeData
	if len(buf) < 2 {
		return data, fmt.Errorf("indoor bike data too short: %d bytes", len(buf))
	}

	flags := readUint16(buf, 0)
	offset := 2

	advance := func(n int, field string) error {
		if offset+n > len(buf) {
			return fmt.Errorf("buffer too short for %s at offset %d", field, offset)
		}
		return nil
	}

	if flags&ibdFlagMoreData == 0 {
		if err := advance(2, "instantaneous speed"); err != nil {
			return data, err
		}
		v := float64(readUint16(buf, offset)) * 0.01
		data.SpeedKmh = &v
		offset += 2
	}
	if flags&ibdFlagAverageSpeed != 0 {
		if err := advance(2, "average speed"); err != nil {
			return data, err
		}
		offset += 2
	}
	if flags&ibdFlagInstantaneousCadence != 0 {
		if err := advance(2, "instantaneous cadence"); err != nil {
			return data, err
		}
		v := float64(readUint16(buf, offset)) * 0.5
		data.CadenceRpm = &v
		offset += 2
	}
	if flags&ibdFlagAverageCadence != 0 {
		if err := advance(2, "average cadence"); err != nil {
			return data, err
		}
		offset += 2
	}
	if flags&ibdFlagTotalDistance != 0 {
		if err := advance(3, "total distance"); err != nil {
			return data, err
		}
		offset += 3
	}
	if flags&ibdFlagResistanceLevel != 0 {
		if err := advance(2, "resistance level"); err != nil {
			return data, err
		}
		offset += 2
	}
	if flags&ibdFlagInstantaneousPower != 0 {
		if err := advance(2, "instantaneous power"); err != nil {
			return data, err
		}
		v := float64(int16(readUint16(buf, offset)))
		data.PowerWatts = &v
		offset += 2
	}
	if flags&ibdFlagAveragePower != 0 {
		if err := advance(2, "average power"); err != nil {
			return data, err
		}
		offset += 2
	}
	if flags&ibdFlagExpendedEnergy != 0 {
		if err := advance(5, "expended energy"); err != nil {
			return data, err
		}
		offset += 5
	}
	if flags&ibdFlagHeartRate != 0 {
		if err := advance(1, "heart rate"); err != nil {
			return data, err
		}
		v := float64(buf[offset])
		data.HeartRate = &v
	}

	return data, nil
}

// parseHeartRate decodes the Heart Rate Measurement characteristic. Flag
// bit 0 selects UINT8 or UINT16 for the bpm value.
func parseHeartRate(buf []byte) (float64, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("heart rate data too short: %d bytes", len(buf))
	}
	if buf[0]&0x01 != 0 {
		if len(buf) < 3 {
			return 0, fmt.Errorf("heart rate UINT16 data too short: %d bytes", len(buf))
		}
		return float64(readUint16(buf, 1)), nil
	}
	return float64(buf[1]), nil
}

// parseSupportedPowerRange decodes the Supported Power Range characteristic:
// minimum SINT16, maximum SINT16, increment UINT16, all watts.
func parseSupportedPowerRange(buf []byte) (minWatts, maxWatts, incrementWatts int, err error) {
	if len(buf) < 6 {
		return 0, 0, 0, fmt.Errorf("supported power range too short: %d bytes", len(buf))
	}
	return int(int16(readUint16(buf, 0))), int(int16(readUint16(buf, 2))), int(readUint16(buf, 4)), nil
}

func ftmsOpName(op byte) string {
	switch op {
	case ftmsOpRequestControl:
		return "Request Control"
	case ftmsOpReset:
		return "Reset"
	case ftmsOpSetTargetResistance:
		return "Set Target Resistance"
	case ftmsOpSetTargetPower:
		return "Set Target Power"
	case ftmsOpStartOrResume:
		return "Start/Resume"
	case ftmsOpStopOrPause:
		return "Stop/Pause"
	default:
		return fmt.Sprintf("OpCode 0x%02X", op)
	}
}

func ftmsResultName(code byte) string {
	switch code {
	case ftmsResultSuccess:
		return "Success"
	case ftmsResultOpCodeNotSupported:
		return "Op Code Not Supported"
	case ftmsResultInvalidParameter:
		return "Invalid Parameter"
	case ftmsResultOperationFailed:
		return "Operation Failed"
	case ftmsResultControlNotPermitted:
		return "Control Not Permitted"
	default:
		return fmt.Sprintf("Result 0x%02X", code)
	}
}
