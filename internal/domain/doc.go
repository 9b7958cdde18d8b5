// Package domain models the lake forcing data and the pure transforms that turn
// raw instrument readings into solver inputs.
//
// # Data Sources
//
// Station reports come from the TERC Lake Tahoe report API as JSON arrays of flat
// objects. Every numeric field is a string and TmStamp is "YYYY-MM-DD HH:MM:SS",
// naive local logger time that is always read as UTC.
//
//	USCG station  shortwave in/out, pressure (mbar), RH (%), corrected longwave
//	NASA buoy     two air temperature sensors, two anemometers, two wind vanes
//	Nearshore     LS_Temp_Avg at a fixed shallow depth
//	T-chain       WaterDepth_m plus Temp_1_C..Temp_N_C from the top sensor down
//
// # Units
//
// After merging every row carries SI units: W/m² for radiation, °C, Pa,
// relative humidity as a 0..1 fraction, and m/s. Wind direction is meteorological
// (degrees the wind blows from) until [DecomposeTable] converts it to u/v components.
//
// # Cleaning
//
// [Cleaner] applies five column transforms in order: a 5-point centered median,
// a clip to the feature's [Range], replacement of values beyond 3σ of a centered
// 100-point rolling window, replacement of values left pinned on a bound, and a
// final 5-point median. Each transform is exported and tested on its own.
//
// # Depths
//
// Depths are negative downward. Profiles stay in instrument order; [Resample]
// interpolates on depth magnitude and rejects profiles whose magnitudes decrease.
package domain
