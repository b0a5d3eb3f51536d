// Package domain models Brazilian hydro-meteorological monitoring data.
//
// # Data Sources
//
// Time series come from three public providers:
//
//   - ANA (Agência Nacional de Águas) telemetry web service. Inventory and
//     historical series are served as XML. A station is either a stream
//     gauge (fluviométrica, station type 1) or a rain gauge (pluviométrica,
//     station type 2), and either telemetric (automated transmission) or
//     conventional (manually read).
//   - INMET (Instituto Nacional de Meteorologia) station API. JSON, with
//     provider field codes such as VL_LATITUDE, CD_ESTACAO and DT_MEDICAO.
//     The series endpoint rejects ranges longer than one year.
//   - MERGE/CPTEC gridded precipitation product: one GRIB2 file per day on a
//     public file server, combining satellite and gauge rainfall.
//
// # ANA Series Encoding
//
// The ANA series endpoint returns one <SerieHistorica> element per calendar
// month. Each record carries up to 31 day-indexed fields named by a fixed
// prefix plus a zero-padded day number:
//
//	Chuva01..Chuva31   daily rainfall, mm
//	Cota01..Cota31     daily stage, centimeters (divided by 100 here → meters)
//	Vazao01..Vazao31   daily discharge, m³/s
//
// A month shorter than 31 days simply omits the trailing fields; an omitted
// or empty field is a missing value, never an error. Discharge months also
// carry Maxima/Minima/Media aggregates and a consistency level (1 = raw,
// 2 = validated).
//
// # Known Data Quality Issues
//
// Raw ANA rainfall responses occasionally repeat a date within one station's
// series. The upstream cause is unconfirmed. Deduplication is therefore an
// explicit, caller-selectable policy (see [DedupPolicy]); the default keeps
// the first occurrence, matching long-standing downstream behavior.
//
// # Missing Values
//
// Missing observations are NaN, both in series values and grid cells.
// Merging never drops a station/date combination silently: the wide table's
// row index is the sorted union of every constituent range, with NaN holes
// where a station has no observation.
package domain
