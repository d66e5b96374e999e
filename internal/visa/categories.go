package visa

// Merchant control types.
const (
	MCTAdultEntertainment = "MCT_ADULT_ENTERTAINMENT"
	MCTAirfare            = "MCT_AIRFARE"
	MCTAlcohol            = "MCT_ALCOHOL"
	MCTApparel            = "MCT_APPAREL_AND_ACCESSORIES"
	MCTAutomotive         = "MCT_AUTOMOTIVE"
	MCTCarRental          = "MCT_CAR_RENTAL"
	MCTDining             = "MCT_DINING"
	MCTElectronics        = "MCT_ELECTRONICS"
	MCTGambling           = "MCT_GAMBLING"
	MCTGas                = "MCT_GAS_AND_PETROLEUM"
	MCTGrocery            = "MCT_GROCERY"
	MCTHotel              = "MCT_HOTEL_AND_LODGING"
	MCTHousehold          = "MCT_HOUSEHOLD"
	MCTPersonalCare       = "MCT_PERSONAL_CARE"
	MCTSmokeTobacco       = "MCT_SMOKE_AND_TOBACCO"
	MCTSport              = "MCT_SPORT_AND_RECREATION"
)

// Transaction control types.
const (
	TCTATMWithdraw   = "TCT_ATM_WITHDRAW"
	TCTAutoPay       = "TCT_AUTO_PAY"
	TCTBrickMortar   = "TCT_BRICK_AND_MORTAR"
	TCTCrossBorder   = "TCT_CROSS_BORDER"
	TCTECommerce     = "TCT_E_COMMERCE"
	TCTContactless   = "TCT_CONTACTLESS"
	TCTPurchaseRetrn = "TCT_PURCHASE_RETURN"
)

var mccControlTypes = map[string]string{
	"3000": MCTAirfare,
	"4511": MCTAirfare,
	"3351": MCTCarRental,
	"7512": MCTCarRental,
	"3501": MCTHotel,
	"7011": MCTHotel,
	"5411": MCTGrocery,
	"5422": MCTGrocery,
	"5441": MCTGrocery,
	"5451": MCTGrocery,
	"5462": MCTGrocery,
	"5499": MCTGrocery,
	"5811": MCTDining,
	"5812": MCTDining,
	"5813": MCTAlcohol,
	"5814": MCTDining,
	"5921": MCTAlcohol,
	"5993": MCTSmokeTobacco,
	"5541": MCTGas,
	"5542": MCTGas,
	"5983": MCTGas,
	"5511": MCTAutomotive,
	"5521": MCTAutomotive,
	"5531": MCTAutomotive,
	"7538": MCTAutomotive,
	"5611": MCTApparel,
	"5621": MCTApparel,
	"5651": MCTApparel,
	"5691": MCTApparel,
	"5699": MCTApparel,
	"5732": MCTElectronics,
	"5734": MCTElectronics,
	"5045": MCTElectronics,
	"5200": MCTHousehold,
	"5251": MCTHousehold,
	"5712": MCTHousehold,
	"5722": MCTHousehold,
	"5912": MCTPersonalCare,
	"7230": MCTPersonalCare,
	"7298": MCTPersonalCare,
	"5941": MCTSport,
	"7941": MCTSport,
	"7997": MCTSport,
	"7995": MCTGambling,
	"7800": MCTGambling,
	"7801": MCTGambling,
	"7802": MCTGambling,
	"5967": MCTAdultEntertainment,
	"7273": MCTAdultEntertainment,
}

// ControlTypeForMCC maps a merchant category code to the merchant control
// type that governs it. ok is false for codes no control covers.
func ControlTypeForMCC(mcc string) (controlType string, ok bool) {
	controlType, ok = mccControlTypes[mcc]
	return controlType, ok
}

// SpendLimitForFrequency maps a payment cadence to the spend limit window
// used when monitoring it.
func SpendLimitForFrequency(frequency string) string {
	switch frequency {
	case "weekly", "biweekly":
		return LimitWeek
	case "monthly":
		return LimitMonth
	case "yearly":
		return LimitYear
	default:
		return LimitRecurring
	}
}
