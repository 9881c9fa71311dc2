// Package skeleton maps a pose model name to the marker relationships the
// engine relies on: rigid parent/child pairs for outlier detection, and
// named segment and joint patterns for reporting.
//
// Patterns list several candidate marker combinations so one table serves
// datasets labelled with OpenPose style names (RHip, Neck) and BlazePose
// style names (right_hip, nose). Resolution picks the first candidate whose
// markers are all present in the dataset.
package skeleton
