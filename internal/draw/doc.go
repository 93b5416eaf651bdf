// Package draw picks lucky draw winners and renders the spinning wheel.
//
// Winner selection and rendering are independent. SelectWinner fixes the winner first and
// derives the wheel's final rotation from it; the Animator only eases toward that rotation.
//
// Angles are in degrees in screen space: 0 is the top of the wheel, increasing clockwise. Slice
// i of n spans [i*360/n, (i+1)*360/n) before rotation, and the pointer sits fixed at 0.
package draw
