package devices

import (
	"context"
	"time"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// instrument modes, the states of 9idcLAX:SAXS:USAXSSAXSMode
const (
	ModeDirty         = "dirty"
	ModeOutOfBeam     = "out of beam"
	ModeUSAXSInBeam   = "USAXS in beam"
	ModeSAXSInBeam    = "SAXS in beam"
	ModeWAXSInBeam    = "WAXS in beam"
	ModeImagingInBeam = "Imaging in beam"
	ModeRadiography   = "Radiography in beam"
)

// AlTiFilters is an Al/Ti filter selection pair
type AlTiFilters struct {
	Al, Ti pv.Float
}

func newAlTi(net pv.Network, prefix, suffix string) AlTiFilters {
	return AlTiFilters{
		Al: pv.NewFloat(net, prefix+"Al_Filter"+suffix),
		Ti: pv.NewFloat(net, prefix+"Ti_Filter"+suffix),
	}
}

// Centers are the remembered tune centers
type Centers struct {
	AR, ASR, MR, MSR pv.Float
}

// Transmission drives the pin diode transmission measurement in USAXS
type Transmission struct {
	Measure     pv.Bool
	Ay          pv.Float
	CountTime   pv.Float
	DiodeCounts pv.Float
	DiodeGain   pv.Float
	I0Counts    pv.Float
	I0Gain      pv.Float
}

// USAXSTerms are the USAXS values shared with EPICS
type USAXSTerms struct {
	AY0, DY0, ASRP0, SAD, SDD pv.Float

	ArValCenter, AsrValCenter, MrValCenter, MsrValCenter pv.Float

	Center      Centers
	CCDDx       pv.Float
	CCDDy       pv.Float
	DiodeDx     pv.Float
	DiodeDy     pv.Float
	ImgFilters  AlTiFilters
	ScanFilters AlTiFilters

	Finish             pv.Float
	Is2DUSAXSScan      pv.Bool
	MotorPrescalerWait pv.Float
	NumPoints          pv.Int
	SampleYStep        pv.Float
	Scanning           pv.Int
	StartOffset        pv.Float
	UATerm             pv.Float
	MinStep            pv.Float
	CountTime          pv.Float

	Transmission Transmission

	// not PVs
	ASRPDegreesPerVDC float64
	UseMSStage        bool
	UseSBUSAXS        bool
	RetuneNeeded      bool
	SetpointUp        float64
	SetpointDown      float64
}

// SAXSTerms are the pinhole SAXS values shared with EPICS
type SAXSTerms struct {
	ZIn, ZOut, ZLimitOffset    pv.Float
	YIn, YOut, YLimitOffset    pv.Float
	AxIn, AxOut, AxLimitOffset pv.Float
	DxIn, DxOut, DxLimitOffset pv.Float

	USAXSHSize, USAXSVSize           pv.Float
	VSize, HSize                     pv.Float
	USAXSGuardHSize, USAXSGuardVSize pv.Float
	GuardVSize, GuardHSize           pv.Float

	Filters       AlTiFilters
	BaseDir       pv.String
	UsaxsSaxsMode pv.String
	NumImages     pv.Int
	AcquireTime   pv.Float
	Collecting    pv.Int
}

// SAXSWAXSTerms are shared by SAXS and WAXS
type SAXSWAXSTerms struct {
	StartExposureTime, EndExposureTime pv.Float
	DiodeGain, DiodeTransmission       pv.Float
	I0Gain, I0Transmission             pv.Float
	I0                                 pv.Float
}

// WAXSTerms are the WAXS values shared with EPICS
type WAXSTerms struct {
	XIn, XOut, XLimitOffset pv.Float

	Filters     AlTiFilters
	BaseDir     pv.String
	NumImages   pv.Int
	AcquireTime pv.Float
	Collecting  pv.Int
}

// ImagingTerms are the radiography/imaging values shared with EPICS
type ImagingTerms struct {
	ImageKey          pv.Int // 0=image, 1=flat field, 2=dark field
	ExposureTime      pv.Float
	TomoRotationAngle pv.Float
	I0, I0Gain        pv.Float
	AxIn, WAXSXIn     pv.Float
	FlatField         pv.Float
	DarkField         pv.Float
	Title             pv.String

	HSize, VSize           pv.Float
	GuardHSize, GuardVSize pv.Float

	Filters            AlTiFilters
	FilterTransmission pv.Float
}

// FlyScanTerms configure the USAXS fly scan
type FlyScanTerms struct {
	NumberPoints pv.Int
	ScanTime     pv.Float
	UseFlyscan   pv.Bool
	AsrpCalcSCAN pv.Int
	OrderNumber  pv.Int
	ElapsedTime  pv.Float

	SetpointUp, SetpointDown float64
}

// Terms is the cache of instrument parameters shared with EPICS
type Terms struct {
	USAXS        USAXSTerms
	SAXS         SAXSTerms
	SAXSWAXS     SAXSWAXSTerms
	WAXS         WAXSTerms
	Imaging      ImagingTerms
	FlyScan      FlyScanTerms
	PreUSAXSTune *PreUSAXSTune

	PauseBeforeNextScan pv.Bool
	StopBeforeNextScan  pv.Bool
}

func newTerms(net pv.Network) *Terms {
	f := func(name string) pv.Float { return pv.NewFloat(net, name) }
	i := func(name string) pv.Int { return pv.NewInt(net, name) }
	s := func(name string) pv.String { return pv.NewString(net, name) }
	b := func(name string) pv.Bool { return pv.NewBool(net, name) }
	const u = "9idcLAX:USAXS:"
	t := &Terms{
		USAXS: USAXSTerms{
			AY0:          f(u + "AY0"),
			DY0:          f(u + "DY0"),
			ASRP0:        f(u + "ASRcenter"),
			SAD:          f(u + "SAD"),
			SDD:          f(u + "SDD"),
			ArValCenter:  f(u + "ARcenter"),
			AsrValCenter: f(u + "ASRcenter"),
			MrValCenter:  f(u + "MRcenter"),
			MsrValCenter: f(u + "MSRcenter"),
			Center: Centers{
				AR:  f(u + "ARcenter"),
				ASR: f(u + "ASRcenter"),
				MR:  f(u + "MRcenter"),
				MSR: f(u + "MSRcenter"),
			},
			CCDDx:              f(u + "CCD_dx"),
			CCDDy:              f(u + "CCD_dy"),
			DiodeDx:            f(u + "Diode_dx"),
			DiodeDy:            f(u + "DY0"),
			ImgFilters:         newAlTi(net, u+"Img_", ""),
			ScanFilters:        newAlTi(net, u+"Scan_", ""),
			Finish:             f(u + "Finish"),
			Is2DUSAXSScan:      b(u + "is2DUSAXSscan"),
			MotorPrescalerWait: f(u + "Prescaler_Wait"),
			NumPoints:          i(u + "NumPoints"),
			SampleYStep:        f(u + "Sample_Y_Step"),
			Scanning:           i(u + "scanning"),
			StartOffset:        f(u + "StartOffset"),
			UATerm:             f(u + "UATerm"),
			MinStep:            f(u + "MinStep"),
			CountTime:          f(u + "CountTime"),
			Transmission: Transmission{
				Measure:     b(u + "TR_MeasurePinTrans"),
				Ay:          f(u + "TR_AyPosition"),
				CountTime:   f(u + "TR_MeasurementTime"),
				DiodeCounts: f(u + "TR_pinCounts"),
				DiodeGain:   f(u + "TR_pinGain"),
				I0Counts:    f(u + "TR_I0Counts"),
				I0Gain:      f(u + "TR_I0Gain"),
			},
			// measured 2016-06-04, average of two numbers
			ASRPDegreesPerVDC: (0.000570223 + 0.000585857) / 2,
			SetpointUp:        4000,
			SetpointDown:      650000,
		},
		SAXS: SAXSTerms{
			ZIn:             f("9idcLAX:SAXS_z_in"),
			ZOut:            f("9idcLAX:SAXS_z_out"),
			ZLimitOffset:    f("9idcLAX:SAXS_z_limit_offset"),
			YIn:             f("9idcLAX:SAXS_y_in"),
			YOut:            f("9idcLAX:SAXS_y_out"),
			YLimitOffset:    f("9idcLAX:SAXS_y_limit_offset"),
			AxIn:            f("9idcLAX:ax_in"),
			AxOut:           f("9idcLAX:ax_out"),
			AxLimitOffset:   f("9idcLAX:ax_limit_offset"),
			DxIn:            f("9idcLAX:dx_in"),
			DxOut:           f("9idcLAX:dx_out"),
			DxLimitOffset:   f("9idcLAX:dx_limit_offset"),
			USAXSHSize:      f("9idcLAX:USAXS_hslit_ap"),
			USAXSVSize:      f("9idcLAX:USAXS_vslit_ap"),
			VSize:           f("9idcLAX:SAXS_vslit_ap"),
			HSize:           f("9idcLAX:SAXS_hslit_ap"),
			USAXSGuardHSize: f("9idcLAX:USAXS_hgslit_ap"),
			USAXSGuardVSize: f("9idcLAX:USAXS_vgslit_ap"),
			GuardVSize:      f("9idcLAX:SAXS_vgslit_ap"),
			GuardHSize:      f("9idcLAX:SAXS_hgslit_ap"),
			Filters:         newAlTi(net, "9idcLAX:SAXS:Exp_", ""),
			BaseDir:         s("9idcLAX:SAXS:directory"),
			UsaxsSaxsMode:   s("9idcLAX:SAXS:USAXSSAXSMode"),
			NumImages:       i("9idcLAX:SAXS:NumImages"),
			AcquireTime:     f("9idcLAX:SAXS:AcquireTime"),
			Collecting:      i("9idcLAX:collectingSAXS"),
		},
		SAXSWAXS: SAXSWAXSTerms{
			StartExposureTime: f("9idcLAX:SAXS:StartExposureTime"),
			EndExposureTime:   f("9idcLAX:SAXS:EndExposureTime"),
			DiodeGain:         f("9idcLAX:SAXS:SAXS_TrPDgain"),
			DiodeTransmission: f("9idcLAX:SAXS:SAXS_TrPD"),
			I0Gain:            f("9idcLAX:SAXS:SAXS_TrI0gain"),
			I0Transmission:    f("9idcLAX:SAXS:SAXS_TrI0"),
			I0:                f("9idcLAX:SAXS:I0"),
		},
		WAXS: WAXSTerms{
			XIn:          f("9idcLAX:WAXS_x_in"),
			XOut:         f("9idcLAX:WAXS_x_out"),
			XLimitOffset: f("9idcLAX:WAXS_x_limit_offset"),
			Filters:      newAlTi(net, "9idcLAX:USAXS_WAXS:Exp_", ""),
			BaseDir:      s("9idcLAX:USAXS_WAXS:directory"),
			NumImages:    i("9idcLAX:USAXS_WAXS:NumImages"),
			AcquireTime:  f("9idcLAX:USAXS_WAXS:AcquireTime"),
			Collecting:   i("9idcLAX:collectingWAXS"),
		},
		Imaging: ImagingTerms{
			ImageKey:           i("9idcLAX:USAXS_Img:ImageKey"),
			ExposureTime:       f("9idcLAX:USAXS_Img:ExposureTime"),
			TomoRotationAngle:  f("9idcLAX:USAXS_Img:Tomo_Rot_Angle"),
			I0:                 f("9idcLAX:USAXS_Img:Img_I0_value"),
			I0Gain:             f("9idcLAX:USAXS_Img:Img_I0_gain"),
			AxIn:               f("9idcLAX:USAXS_Img:ax_in"),
			WAXSXIn:            f("9idcLAX:USAXS_Img:waxs_x_in"),
			FlatField:          f("9idcLAX:USAXS_Img:FlatFieldImage"),
			DarkField:          f("9idcLAX:USAXS_Img:DarkFieldImage"),
			Title:              s("9idcLAX:USAXS_Img:ExperimentTitle"),
			HSize:              f("9idcLAX:USAXS_Img:ImgHorApperture"),
			VSize:              f("9idcLAX:USAXS_Img:ImgVertApperture"),
			GuardHSize:         f("9idcLAX:USAXS_Img:ImgGuardHorApperture"),
			GuardVSize:         f("9idcLAX:USAXS_Img:ImgGuardVertApperture"),
			Filters:            newAlTi(net, "9idcLAX:USAXS_Img:Img_", "s"),
			FilterTransmission: f("9idcLAX:USAXS_Img:Img_FilterTransmission"),
		},
		FlyScan: FlyScanTerms{
			NumberPoints: i(u + "FS_NumberOfPoints"),
			ScanTime:     f(u + "FS_ScanTime"),
			UseFlyscan:   b(u + "UseFlyscan"),
			AsrpCalcSCAN: i("9idcLAX:userStringCalc2.SCAN"),
			OrderNumber:  i(u + "FS_OrderNumber"),
			ElapsedTime:  f(u + "FS_ElapsedTime"),
			SetpointUp:   6000,
			SetpointDown: 850000,
		},
		PreUSAXSTune:        newPreUSAXSTune(net),
		PauseBeforeNextScan: b("9idcLAX:PauseBeforeNextScan"),
		StopBeforeNextScan:  b("9idcLAX:StopBeforeNextScan"),
	}
	return t
}

// PreUSAXSTune tracks when the instrument was last tuned
type PreUSAXSTune struct {
	NumScansLastTune       pv.Int
	EpochLastTune          pv.Float
	ReqNumScansBetweenTune pv.Int
	ReqTimeBetweenTune     pv.Float
	RunTuneOnQdo           pv.Bool
	RunTuneNext            pv.Bool
	SX, SY                 pv.Float
	UseSpecificLocation    pv.Bool
}

func newPreUSAXSTune(net pv.Network) *PreUSAXSTune {
	return &PreUSAXSTune{
		NumScansLastTune:       pv.NewInt(net, "9idcLAX:NumScansFromLastTune"),
		EpochLastTune:          pv.NewFloat(net, "9idcLAX:EPOCHTimeOfLastTune"),
		ReqNumScansBetweenTune: pv.NewInt(net, "9idcLAX:ReqNumScansBetweenTune"),
		ReqTimeBetweenTune:     pv.NewFloat(net, "9idcLAX:ReqTimeBetweenTune"),
		RunTuneOnQdo:           pv.NewBool(net, "9idcLAX:RunPreUSAXStuneOnQdo"),
		RunTuneNext:            pv.NewBool(net, "9idcLAX:RunPreUSAXStuneNext"),
		SX:                     pv.NewFloat(net, "9idcLAX:preUSAXStuneSX"),
		SY:                     pv.NewFloat(net, "9idcLAX:preUSAXStuneSY"),
		UseSpecificLocation:    pv.NewBool(net, "9idcLAX:UseSpecificTuneLocation"),
	}
}

// Needed reports whether a tune is due: one was requested, too many scans
// ran since the last tune, or too much time passed.  The request flag is
// cleared either way.
func (p *PreUSAXSTune) Needed(ctx context.Context, now time.Time) (bool, error) {
	next, err := p.RunTuneNext.Get(ctx)
	if err != nil {
		return false, err
	}
	scans, err := p.NumScansLastTune.Get(ctx)
	if err != nil {
		return false, err
	}
	reqScans, err := p.ReqNumScansBetweenTune.Get(ctx)
	if err != nil {
		return false, err
	}
	epoch, err := p.EpochLastTune.Get(ctx)
	if err != nil {
		return false, err
	}
	reqTime, err := p.ReqTimeBetweenTune.Get(ctx)
	if err != nil {
		return false, err
	}
	nowSecs := float64(now.UnixNano()) / 1e9
	needed := next || scans > reqScans || nowSecs > epoch+reqTime
	if err := p.RunTuneNext.Put(ctx, false); err != nil {
		return needed, err
	}
	return needed, nil
}

// Done records a tune that just finished
func (p *PreUSAXSTune) Done(ctx context.Context, now time.Time) error {
	if err := p.NumScansLastTune.Put(ctx, 0); err != nil {
		return err
	}
	return p.EpochLastTune.Put(ctx, float64(now.Unix()))
}
