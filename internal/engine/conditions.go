package engine

import "fmt"

// Conditions is the ambient environmental condition tuple attached to the
// engine state. It is a plain value object: mutated only by explicit
// operator commands and read by instrument systems to decide guiding
// behaviour.
type Conditions struct {
	ImageQuality  ImageQuality  `json:"image_quality"`
	CloudCover    CloudCover    `json:"cloud_cover"`
	WaterVapor    WaterVapor    `json:"water_vapor"`
	SkyBackground SkyBackground `json:"sky_background"`
}

// DefaultConditions returns the fully unconstrained condition tuple used
// when the engine starts.
func DefaultConditions() Conditions {
	return Conditions{
		ImageQuality:  IQAny,
		CloudCover:    CCAny,
		WaterVapor:    WVAny,
		SkyBackground: SBAny,
	}
}

// ImageQuality is the delivered image quality percentile bin.
type ImageQuality string

// ImageQuality bins.
const (
	IQ20  ImageQuality = "iq20"
	IQ70  ImageQuality = "iq70"
	IQ85  ImageQuality = "iq85"
	IQAny ImageQuality = "iq_any"
)

// CloudCover is the cloud cover percentile bin.
type CloudCover string

// CloudCover bins.
const (
	CC50  CloudCover = "cc50"
	CC70  CloudCover = "cc70"
	CC80  CloudCover = "cc80"
	CCAny CloudCover = "cc_any"
)

// WaterVapor is the water vapour percentile bin.
type WaterVapor string

// WaterVapor bins.
const (
	WV20  WaterVapor = "wv20"
	WV50  WaterVapor = "wv50"
	WV80  WaterVapor = "wv80"
	WVAny WaterVapor = "wv_any"
)

// SkyBackground is the sky background brightness percentile bin.
type SkyBackground string

// SkyBackground bins.
const (
	SB20  SkyBackground = "sb20"
	SB50  SkyBackground = "sb50"
	SB80  SkyBackground = "sb80"
	SBAny SkyBackground = "sb_any"
)

// ParseImageQuality converts a wire value into an ImageQuality bin.
func ParseImageQuality(s string) (ImageQuality, error) {
	switch ImageQuality(s) {
	case IQ20, IQ70, IQ85, IQAny:
		return ImageQuality(s), nil
	}
	return "", fmt.Errorf("%w: image quality %q", ErrInvalidCondition, s)
}

// ParseCloudCover converts a wire value into a CloudCover bin.
func ParseCloudCover(s string) (CloudCover, error) {
	switch CloudCover(s) {
	case CC50, CC70, CC80, CCAny:
		return CloudCover(s), nil
	}
	return "", fmt.Errorf("%w: cloud cover %q", ErrInvalidCondition, s)
}

// ParseWaterVapor converts a wire value into a WaterVapor bin.
func ParseWaterVapor(s string) (WaterVapor, error) {
	switch WaterVapor(s) {
	case WV20, WV50, WV80, WVAny:
		return WaterVapor(s), nil
	}
	return "", fmt.Errorf("%w: water vapour %q", ErrInvalidCondition, s)
}

// ParseSkyBackground converts a wire value into a SkyBackground bin.
func ParseSkyBackground(s string) (SkyBackground, error) {
	switch SkyBackground(s) {
	case SB20, SB50, SB80, SBAny:
		return SkyBackground(s), nil
	}
	return "", fmt.Errorf("%w: sky background %q", ErrInvalidCondition, s)
}
